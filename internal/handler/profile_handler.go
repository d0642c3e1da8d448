package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// VoterLookup はログインユーザーの有権者を取得するインターフェース。
type VoterLookup interface {
	ForUserID(ctx context.Context, userID string) (*model.Voter, error)
}

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetByVoterID(ctx context.Context, voterID string) (*model.Profile, error)
	UpdateSettings(ctx context.Context, p *model.Profile, always, never bool) error
	MarkViewed(ctx context.Context, p *model.Profile, save bool) error
	Draft(ctx context.Context, p *model.Profile) (*model.Message, error)
	ClearDraft(ctx context.Context, p *model.Profile) error
}

// ProfileHandler は通知設定と通知下書きのHTTPハンドラー。
type ProfileHandler struct {
	voters  VoterLookup
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(voters VoterLookup, service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{voters: voters, service: service}
}

// profileFor はリクエストのユーザーのプロフィールを取得する。失敗時はレスポンスを書き込みnilを返す。
func (h *ProfileHandler) profileFor(w http.ResponseWriter, r *http.Request) *model.Profile {
	userID, ok := requireUserID(w, r)
	if !ok {
		return nil
	}

	v, err := h.voters.ForUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return nil
	}
	p, err := h.service.GetByVoterID(r.Context(), v.ID)
	if err != nil {
		handleServiceError(w, err)
		return nil
	}
	return p
}

// GetProfile は通知設定を返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p := h.profileFor(w, r)
	if p == nil {
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

type updateProfileRequest struct {
	AlwaysAlert bool `json:"always_alert"`
	NeverAlert  bool `json:"never_alert"`
}

// UpdateProfile は通知の常時・停止設定を更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	p := h.profileFor(w, r)
	if p == nil {
		return
	}

	if err := h.service.UpdateSettings(r.Context(), p, req.AlwaysAlert, req.NeverAlert); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// MarkViewed は友人の活動を閲覧したことを記録する。
// POST /api/profile/viewed
func (h *ProfileHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	p := h.profileFor(w, r)
	if p == nil {
		return
	}

	if err := h.service.MarkViewed(r.Context(), p, true); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// GetDraft は蓄積中の通知下書きを返す。
// GET /api/messages/draft
func (h *ProfileHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	p := h.profileFor(w, r)
	if p == nil {
		return
	}

	draft, err := h.service.Draft(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDraftResponse(draft))
}

// ClearDraft は蓄積中の通知下書きを空にする。
// DELETE /api/messages/draft
func (h *ProfileHandler) ClearDraft(w http.ResponseWriter, r *http.Request) {
	p := h.profileFor(w, r)
	if p == nil {
		return
	}

	if err := h.service.ClearDraft(r.Context(), p); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
