package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ballotbuddies/internal/middleware"
	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/progress"
	"github.com/hitoshi/ballotbuddies/internal/voter"
)

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeJSON はレスポンスボディを任意の型にデコードするヘルパー。
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// fixtureStatus は登録済み・不在者投票用紙の返送待ちの有権者ステータス。
const fixtureStatus = `{
	"id": "345-3932-11713",
	"status": {
		"registered": true,
		"absentee": true,
		"absentee_application_received": "2021-09-15",
		"absentee_ballot_sent": "2021-09-30",
		"absentee_ballot_received": null,
		"ballot": true,
		"ballot_url": "https://mvic.sos.state.mi.us/Voter/GetMvicBallot/5947/687/"
	},
	"election": {"id": 45, "name": "November Consolidated", "date": "2021-11-02"}
}`

func newTestVoter(id, first, last string) *model.Voter {
	birth := time.Date(1985, time.June, 7, 0, 0, 0, 0, time.UTC)
	return &model.Voter{
		ID:     id,
		UserID: "user-" + id,
		User: &model.User{
			ID:        "user-" + id,
			Email:     first + "@example.com",
			FirstName: first,
			LastName:  last,
		},
		Slug:      voter.Slugify(first, last, "49503"),
		BirthDate: &birth,
		ZipCode:   "49503",
		Status:    json.RawMessage(fixtureStatus),
	}
}

// testNow はfixtureStatusの選挙の32日前。
var testNow = time.Date(2021, time.October, 1, 12, 0, 0, 0, time.UTC)

// --- モック定義 ---

// mockVoterService はVoterServiceのモック実装。
type mockVoterService struct {
	forUserIDFn      func(ctx context.Context, userID string) (*model.Voter, error)
	updateIdentityFn func(ctx context.Context, v *model.Voter, in voter.IdentityInput) error
	updateStatusFn   func(ctx context.Context, v *model.Voter) (bool, string)
	shareStatusFn    func(ctx context.Context, v *model.Voter) error
	saveFn           func(ctx context.Context, v *model.Voter) error
	communityFn      func(ctx context.Context, v *model.Voter) ([]*model.Voter, error)
	inviteFn         func(ctx context.Context, v *model.Voter, emails []string) ([]*model.Voter, error)
	getBySlugFn      func(ctx context.Context, slug string) (*model.Voter, error)
	addStrangerFn    func(ctx context.Context, v, other *model.Voter) error
}

func (m *mockVoterService) ForUserID(ctx context.Context, userID string) (*model.Voter, error) {
	if m.forUserIDFn != nil {
		return m.forUserIDFn(ctx, userID)
	}
	return newTestVoter("voter-1", "Jane", "Doe"), nil
}

func (m *mockVoterService) Progress(v *model.Voter) progress.Progress {
	return progress.Parse(v.Status, testNow)
}

func (m *mockVoterService) UpdateIdentity(ctx context.Context, v *model.Voter, in voter.IdentityInput) error {
	if m.updateIdentityFn != nil {
		return m.updateIdentityFn(ctx, v, in)
	}
	return nil
}

func (m *mockVoterService) UpdateStatus(ctx context.Context, v *model.Voter) (bool, string) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, v)
	}
	return false, ""
}

func (m *mockVoterService) ShareStatus(ctx context.Context, v *model.Voter) error {
	if m.shareStatusFn != nil {
		return m.shareStatusFn(ctx, v)
	}
	return nil
}

func (m *mockVoterService) Save(ctx context.Context, v *model.Voter) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, v)
	}
	return nil
}

func (m *mockVoterService) Community(ctx context.Context, v *model.Voter) ([]*model.Voter, error) {
	if m.communityFn != nil {
		return m.communityFn(ctx, v)
	}
	return nil, nil
}

func (m *mockVoterService) Invite(ctx context.Context, v *model.Voter, emails []string) ([]*model.Voter, error) {
	if m.inviteFn != nil {
		return m.inviteFn(ctx, v, emails)
	}
	return nil, nil
}

func (m *mockVoterService) GetBySlug(ctx context.Context, slug string) (*model.Voter, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, model.NewVoterNotFoundError(slug)
}

func (m *mockVoterService) AddStranger(ctx context.Context, v, other *model.Voter) error {
	if m.addStrangerFn != nil {
		return m.addStrangerFn(ctx, v, other)
	}
	return nil
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	getByVoterIDFn   func(ctx context.Context, voterID string) (*model.Profile, error)
	updateSettingsFn func(ctx context.Context, p *model.Profile, always, never bool) error
	markViewedFn     func(ctx context.Context, p *model.Profile, save bool) error
	draftFn          func(ctx context.Context, p *model.Profile) (*model.Message, error)
	clearDraftFn     func(ctx context.Context, p *model.Profile) error
}

func (m *mockProfileService) GetByVoterID(ctx context.Context, voterID string) (*model.Profile, error) {
	if m.getByVoterIDFn != nil {
		return m.getByVoterIDFn(ctx, voterID)
	}
	return &model.Profile{ID: "profile-" + voterID, VoterID: voterID, LastAlerted: testNow, LastViewed: testNow}, nil
}

func (m *mockProfileService) UpdateSettings(ctx context.Context, p *model.Profile, always, never bool) error {
	if m.updateSettingsFn != nil {
		return m.updateSettingsFn(ctx, p, always, never)
	}
	p.AlwaysAlert = always
	p.NeverAlert = never
	return nil
}

func (m *mockProfileService) MarkViewed(ctx context.Context, p *model.Profile, save bool) error {
	if m.markViewedFn != nil {
		return m.markViewedFn(ctx, p, save)
	}
	return nil
}

func (m *mockProfileService) Draft(ctx context.Context, p *model.Profile) (*model.Message, error) {
	if m.draftFn != nil {
		return m.draftFn(ctx, p)
	}
	return &model.Message{ID: "message-1", ProfileID: p.ID, Activity: map[string]string{}, State: model.MessageStateDraft}, nil
}

func (m *mockProfileService) ClearDraft(ctx context.Context, p *model.Profile) error {
	if m.clearDraftFn != nil {
		return m.clearDraftFn(ctx, p)
	}
	return nil
}
