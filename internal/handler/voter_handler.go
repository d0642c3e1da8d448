package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/progress"
	"github.com/hitoshi/ballotbuddies/internal/voter"
)

// VoterServiceInterface は有権者ハンドラーが必要とするサービスインターフェース。
type VoterServiceInterface interface {
	ForUserID(ctx context.Context, userID string) (*model.Voter, error)
	Progress(v *model.Voter) progress.Progress
	UpdateIdentity(ctx context.Context, v *model.Voter, in voter.IdentityInput) error
	UpdateStatus(ctx context.Context, v *model.Voter) (bool, string)
	ShareStatus(ctx context.Context, v *model.Voter) error
	Save(ctx context.Context, v *model.Voter) error
}

// VoterHandler はログインユーザー本人の有権者情報のHTTPハンドラー。
type VoterHandler struct {
	service VoterServiceInterface
	now     func() time.Time
}

// NewVoterHandler はVoterHandlerを生成する。
func NewVoterHandler(service VoterServiceInterface) *VoterHandler {
	return &VoterHandler{service: service, now: time.Now}
}

// GetMe は本人の有権者情報と進捗を返す。
// GET /api/voters/me
func (h *VoterHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	v, err := h.service.ForUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toVoterResponse(v, h.service.Progress(v), h.now()))
}

type updateVoterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
	ZipCode   string `json:"zip_code"`
}

// UpdateMe は本人情報を更新し、選挙ステータスを再照会する。
// ステータスが変わった場合は友人の通知下書きに共有する。
// PUT /api/voters/me
func (h *VoterHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateVoterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	ctx := r.Context()
	v, err := h.service.ForUserID(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.UpdateIdentity(ctx, v, voter.IdentityInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: req.BirthDate,
		ZipCode:   req.ZipCode,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	changed, message := h.service.UpdateStatus(ctx, v)
	if err := h.service.Save(ctx, v); err != nil {
		handleServiceError(w, err)
		return
	}
	if changed {
		if err := h.service.ShareStatus(ctx, v); err != nil {
			// 共有の失敗は本人の更新結果に影響させない
			slog.Error("failed to share status",
				slog.String("voter_id", v.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	resp := toVoterResponse(v, h.service.Progress(v), h.now())
	resp.Message = message
	writeJSON(w, http.StatusOK, resp)
}
