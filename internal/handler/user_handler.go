package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ballotbuddies/internal/middleware"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw は友人の下書きから本人の活動を取り除き、セッション・ユーザー・有権者・プロフィールを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  middleware.CookieConfig
}

// NewUserHandler はUserHandlerを生成する。cookieは退会時にセッションCookieを消すために使う。
func NewUserHandler(service UserServiceInterface, cookie middleware.CookieConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

// Withdraw は退会処理を行い、ブラウザのセッションCookieも破棄する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("user withdrew", slog.String("user_id", userID))
	http.SetCookie(w, middleware.SessionCookie("", -1, h.cookie))
	w.WriteHeader(http.StatusNoContent)
}
