package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/ballotbuddies/internal/model"
)

// --- GET /api/profile テスト ---

func TestProfileHandler_GetProfile_Success(t *testing.T) {
	profiles := &mockProfileService{
		getByVoterIDFn: func(ctx context.Context, voterID string) (*model.Profile, error) {
			if voterID != "voter-1" {
				t.Errorf("voterID = %q, want %q", voterID, "voter-1")
			}
			return &model.Profile{
				ID:          "profile-1",
				VoterID:     voterID,
				AlwaysAlert: true,
				LastAlerted: testNow.Add(-3 * 24 * time.Hour),
				LastViewed:  testNow,
				Staleness:   3 * 24 * time.Hour,
				WillAlert:   true,
			}, nil
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/profile", nil), "user-123")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body profileResponse
	decodeJSON(t, w, &body)
	if !body.AlwaysAlert || body.NeverAlert || !body.WillAlert {
		t.Errorf("body = %+v", body)
	}
	if body.StalenessDays != 3 {
		t.Errorf("staleness_days = %d, want 3", body.StalenessDays)
	}
	if body.LastViewed != "2021-10-01T12:00:00Z" {
		t.Errorf("last_viewed = %q", body.LastViewed)
	}
}

func TestProfileHandler_GetProfile_NotFound(t *testing.T) {
	profiles := &mockProfileService{
		getByVoterIDFn: func(ctx context.Context, voterID string) (*model.Profile, error) {
			return nil, model.NewProfileNotFoundError()
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/profile", nil), "user-123")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestProfileHandler_GetProfile_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewProfileHandler(&mockVoterService{}, &mockProfileService{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- PUT /api/profile テスト ---

func TestProfileHandler_UpdateProfile_Success(t *testing.T) {
	h := NewProfileHandler(&mockVoterService{}, &mockProfileService{})

	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"never_alert": true}`)), "user-123")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body profileResponse
	decodeJSON(t, w, &body)
	if body.AlwaysAlert || !body.NeverAlert {
		t.Errorf("body = %+v", body)
	}
}

func TestProfileHandler_UpdateProfile_BothOverrides_ReturnsBadRequest(t *testing.T) {
	profiles := &mockProfileService{
		updateSettingsFn: func(ctx context.Context, p *model.Profile, always, never bool) error {
			if always && never {
				return model.NewInvalidAlertConfigError()
			}
			return nil
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	body := `{"always_alert": true, "never_alert": true}`
	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp := parseAPIErrorResponse(t, w); resp["code"] != model.ErrCodeInvalidAlertConfig {
		t.Errorf("code = %q, want %q", resp["code"], model.ErrCodeInvalidAlertConfig)
	}
}

func TestProfileHandler_UpdateProfile_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewProfileHandler(&mockVoterService{}, &mockProfileService{})

	req := withUserID(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`[`)), "user-123")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- POST /api/profile/viewed テスト ---

func TestProfileHandler_MarkViewed_SavesProfile(t *testing.T) {
	var gotSave bool
	profiles := &mockProfileService{
		markViewedFn: func(ctx context.Context, p *model.Profile, save bool) error {
			gotSave = save
			return nil
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/profile/viewed", nil), "user-123")
	w := httptest.NewRecorder()

	h.MarkViewed(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !gotSave {
		t.Error("MarkViewed should persist the profile")
	}
}

func TestProfileHandler_MarkViewed_Error(t *testing.T) {
	profiles := &mockProfileService{
		markViewedFn: func(ctx context.Context, p *model.Profile, save bool) error {
			return errors.New("db down")
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/profile/viewed", nil), "user-123")
	w := httptest.NewRecorder()

	h.MarkViewed(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- GET /api/messages/draft テスト ---

func TestProfileHandler_GetDraft_ReturnsSortedActivity(t *testing.T) {
	profiles := &mockProfileService{
		draftFn: func(ctx context.Context, p *model.Profile) (*model.Message, error) {
			return &model.Message{
				ID:        "message-1",
				ProfileID: p.ID,
				State:     model.MessageStateDraft,
				Activity: map[string]string{
					"voter-b": "John Smith has received their absentee ballot",
					"voter-a": "Ann Lee is registered to vote",
				},
			}, nil
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/messages/draft", nil), "user-123")
	w := httptest.NewRecorder()

	h.GetDraft(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body draftResponse
	decodeJSON(t, w, &body)
	if body.State != "draft" || body.Count != 2 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Activity) != 2 || body.Activity[0] != "Ann Lee is registered to vote" {
		t.Errorf("activity = %v", body.Activity)
	}
}

func TestProfileHandler_GetDraft_Empty(t *testing.T) {
	h := NewProfileHandler(&mockVoterService{}, &mockProfileService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/messages/draft", nil), "user-123")
	w := httptest.NewRecorder()

	h.GetDraft(w, req)

	if !strings.Contains(w.Body.String(), `"activity":[]`) {
		t.Errorf("body = %s, want empty activity", w.Body.String())
	}
}

// --- DELETE /api/messages/draft テスト ---

func TestProfileHandler_ClearDraft_ReturnsNoContent(t *testing.T) {
	var cleared string
	profiles := &mockProfileService{
		clearDraftFn: func(ctx context.Context, p *model.Profile) error {
			cleared = p.ID
			return nil
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/messages/draft", nil), "user-123")
	w := httptest.NewRecorder()

	h.ClearDraft(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if cleared == "" {
		t.Error("ClearDraft should be called with the user's profile")
	}
}

func TestProfileHandler_ClearDraft_Error(t *testing.T) {
	profiles := &mockProfileService{
		clearDraftFn: func(ctx context.Context, p *model.Profile) error {
			return errors.New("db down")
		},
	}
	h := NewProfileHandler(&mockVoterService{}, profiles)

	req := withUserID(httptest.NewRequest(http.MethodDelete, "/api/messages/draft", nil), "user-123")
	w := httptest.NewRecorder()

	h.ClearDraft(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
