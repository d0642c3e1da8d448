package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ballotbuddies/internal/explore"
	"github.com/hitoshi/ballotbuddies/internal/model"
)

const (
	defaultExploreLimit = 10
	maxExploreLimit     = 100
)

// ExploreServiceInterface は探索ハンドラーが必要とするサービスインターフェース。
type ExploreServiceInterface interface {
	GetProposals(ctx context.Context, q string, limit int, opts explore.Options) (int, []explore.Item, error)
	GetPositions(ctx context.Context, q string, limit int, opts explore.Options) (int, []explore.Item, error)
	GetElection(ctx context.Context, id int) (json.RawMessage, error)
	GetDistrict(ctx context.Context, id int) (json.RawMessage, error)
}

// ExploreHandler は選挙・提案・役職検索のプロキシHTTPハンドラー。
type ExploreHandler struct {
	service ExploreServiceInterface
}

// NewExploreHandler はExploreHandlerを生成する。
func NewExploreHandler(service ExploreServiceInterface) *ExploreHandler {
	return &ExploreHandler{service: service}
}

type searchResponse struct {
	Count   int            `json:"count"`
	Results []explore.Item `json:"results"`
}

// ListProposals は住民投票の提案を検索する。
// GET /api/explore/proposals?q=&limit=&election_id=&district_id=
func (h *ExploreHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, h.service.GetProposals)
}

// ListPositions は役職を検索する。
// GET /api/explore/positions?q=&limit=&election_id=&district_id=
func (h *ExploreHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, h.service.GetPositions)
}

type searchFunc func(ctx context.Context, q string, limit int, opts explore.Options) (int, []explore.Item, error)

func (h *ExploreHandler) search(w http.ResponseWriter, r *http.Request, fn searchFunc) {
	query := r.URL.Query()

	limit, err := intParam(query.Get("limit"), defaultExploreLimit)
	if err != nil || limit < 0 {
		handleServiceError(w, model.NewInvalidQueryError("limit"))
		return
	}
	if limit > maxExploreLimit {
		limit = maxExploreLimit
	}
	electionID, err := intParam(query.Get("election_id"), 0)
	if err != nil {
		handleServiceError(w, model.NewInvalidQueryError("election_id"))
		return
	}
	districtID, err := intParam(query.Get("district_id"), 0)
	if err != nil {
		handleServiceError(w, model.NewInvalidQueryError("district_id"))
		return
	}

	total, items, err := fn(r.Context(), query.Get("q"), limit, explore.Options{
		ElectionID: electionID,
		DistrictID: districtID,
	})
	if err != nil {
		handleExploreError(w, err)
		return
	}
	if len(items) > limit {
		items = items[:limit]
	}

	writeJSON(w, http.StatusOK, searchResponse{Count: total, Results: items})
}

// GetElection は選挙の詳細を返す。
// GET /api/explore/elections/{id}
func (h *ExploreHandler) GetElection(w http.ResponseWriter, r *http.Request) {
	h.detail(w, r, "election", h.service.GetElection)
}

// GetDistrict は選挙区の詳細を返す。
// GET /api/explore/districts/{id}
func (h *ExploreHandler) GetDistrict(w http.ResponseWriter, r *http.Request) {
	h.detail(w, r, "district", h.service.GetDistrict)
}

// detail は外部APIが4xxを返した場合は404、それ以外の障害は502とする。
func (h *ExploreHandler) detail(w http.ResponseWriter, r *http.Request, resource string, fn func(context.Context, int) (json.RawMessage, error)) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		handleServiceError(w, model.NewInvalidQueryError("id"))
		return
	}

	data, err := fn(r.Context(), id)
	var statusErr *explore.StatusError
	if errors.As(err, &statusErr) && statusErr.NotFound() {
		handleServiceError(w, model.NewExploreNotFoundError(resource, id))
		return
	}
	if err != nil {
		handleExploreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleExploreError は外部APIの障害を502として返す。
func handleExploreError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		handleServiceError(w, err)
		return
	}
	slog.Warn("explore API unavailable", slog.String("error", err.Error()))
	handleServiceError(w, model.NewExploreUnavailableError("upstream request failed"))
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
