package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/progress"
)

// FriendsServiceInterface は友人ハンドラーが必要とするサービスインターフェース。
type FriendsServiceInterface interface {
	ForUserID(ctx context.Context, userID string) (*model.Voter, error)
	Progress(v *model.Voter) progress.Progress
	Community(ctx context.Context, v *model.Voter) ([]*model.Voter, error)
	Invite(ctx context.Context, v *model.Voter, emails []string) ([]*model.Voter, error)
	GetBySlug(ctx context.Context, slug string) (*model.Voter, error)
	AddStranger(ctx context.Context, v, other *model.Voter) error
}

// FriendsHandler は友人・近隣の有権者のHTTPハンドラー。
type FriendsHandler struct {
	service FriendsServiceInterface
	now     func() time.Time
}

// NewFriendsHandler はFriendsHandlerを生成する。
func NewFriendsHandler(service FriendsServiceInterface) *FriendsHandler {
	return &FriendsHandler{service: service, now: time.Now}
}

type friendListResponse struct {
	Friends []friendResponse `json:"friends"`
}

func (h *FriendsHandler) toList(voters []*model.Voter) friendListResponse {
	now := h.now()
	resp := friendListResponse{Friends: make([]friendResponse, 0, len(voters))}
	for _, v := range voters {
		resp.Friends = append(resp.Friends, toFriendResponse(v, h.service.Progress(v), now))
	}
	return resp
}

// ListCommunity は友人、続いて近隣の有権者の一覧を返す。
// GET /api/friends
func (h *FriendsHandler) ListCommunity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	v, err := h.service.ForUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	community, err := h.service.Community(r.Context(), v)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toList(community))
}

type inviteRequest struct {
	Emails []string `json:"emails"`
}

// Invite はメールアドレスの一覧を友人として招待する。
// POST /api/friends/invite
func (h *FriendsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	v, err := h.service.ForUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	friends, err := h.service.Invite(r.Context(), v, req.Emails)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toList(friends))
}

// GetFriend は招待スラッグで指定された有権者の公開情報を返す。
// GET /api/friends/{slug}
func (h *FriendsHandler) GetFriend(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	other, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFriendResponse(other, h.service.Progress(other), h.now()))
}

// Ignore は近隣の候補を無視し、以後の近隣一覧から除外する。
// POST /api/friends/{slug}/ignore
func (h *FriendsHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	v, err := h.service.ForUserID(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	other, err := h.service.GetBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.AddStranger(ctx, v, other); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
