package handler

import (
	"encoding/json"
	"time"

	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/progress"
	"github.com/hitoshi/ballotbuddies/internal/voter"
)

const dateLayout = "2006-01-02"

type electionResponse struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Date          string `json:"date"`
	DateHumanized string `json:"date_humanized"`
	Days          int    `json:"days"`
}

type progressResponse struct {
	Stage    string            `json:"stage"`
	Summary  string            `json:"summary"`
	Done     bool              `json:"done"`
	Actions  []string          `json:"actions"`
	Election *electionResponse `json:"election"`
}

func toProgressResponse(p progress.Progress) progressResponse {
	resp := progressResponse{
		Stage:   p.Stage().String(),
		Summary: p.Summary(),
		Done:    p.Done(),
		Actions: p.Actions,
	}
	if resp.Actions == nil {
		resp.Actions = []string{}
	}
	if p.Election != nil {
		resp.Election = &electionResponse{
			ID:            p.Election.ID,
			Name:          p.Election.Name,
			Date:          p.Election.Date.Format(dateLayout),
			DateHumanized: p.Election.DateHumanized,
			Days:          p.Election.Days,
		}
	}
	return resp
}

// voterResponse は本人向けの有権者情報。
type voterResponse struct {
	ID               string           `json:"id"`
	Slug             string           `json:"slug"`
	Email            string           `json:"email"`
	FirstName        string           `json:"first_name"`
	LastName         string           `json:"last_name"`
	BirthDate        string           `json:"birth_date"`
	ZipCode          string           `json:"zip_code"`
	Complete         bool             `json:"complete"`
	Status           json.RawMessage  `json:"status"`
	UpdatedHumanized string           `json:"updated_humanized"`
	Progress         progressResponse `json:"progress"`
	// Message は照会が保留中のときにAPIが返した案内文。
	Message string `json:"message,omitempty"`
}

func toVoterResponse(v *model.Voter, p progress.Progress, now time.Time) voterResponse {
	resp := voterResponse{
		ID:               v.ID,
		Slug:             v.Slug,
		Email:            v.Email(),
		FirstName:        v.FirstName(),
		LastName:         v.LastName(),
		ZipCode:          v.ZipCode,
		Complete:         v.Complete(),
		Status:           v.Status,
		UpdatedHumanized: voter.UpdatedHumanized(v.Updated, now),
		Progress:         toProgressResponse(p),
	}
	if v.BirthDate != nil {
		resp.BirthDate = v.BirthDate.Format(dateLayout)
	}
	if len(resp.Status) == 0 {
		resp.Status = json.RawMessage("null")
	}
	return resp
}

// friendResponse は友人・近隣の有権者として公開する情報。メールアドレスや生年月日は含めない。
type friendResponse struct {
	Slug             string           `json:"slug"`
	Name             string           `json:"name"`
	UpdatedHumanized string           `json:"updated_humanized"`
	Progress         progressResponse `json:"progress"`
}

func toFriendResponse(v *model.Voter, p progress.Progress, now time.Time) friendResponse {
	name := "Anonymous"
	if v.User != nil && v.User.FullName() != "" {
		name = v.User.FullName()
	}
	return friendResponse{
		Slug:             v.Slug,
		Name:             name,
		UpdatedHumanized: voter.UpdatedHumanized(v.Updated, now),
		Progress:         toProgressResponse(p),
	}
}

type profileResponse struct {
	AlwaysAlert   bool   `json:"always_alert"`
	NeverAlert    bool   `json:"never_alert"`
	LastAlerted   string `json:"last_alerted"`
	LastViewed    string `json:"last_viewed"`
	StalenessDays int    `json:"staleness_days"`
	WillAlert     bool   `json:"will_alert"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		AlwaysAlert:   p.AlwaysAlert,
		NeverAlert:    p.NeverAlert,
		LastAlerted:   p.LastAlerted.UTC().Format(time.RFC3339),
		LastViewed:    p.LastViewed.UTC().Format(time.RFC3339),
		StalenessDays: int(p.Staleness / (24 * time.Hour)),
		WillAlert:     p.WillAlert,
	}
}

type draftResponse struct {
	State    string   `json:"state"`
	Count    int      `json:"count"`
	Activity []string `json:"activity"`
}

func toDraftResponse(m *model.Message) draftResponse {
	return draftResponse{
		State:    string(m.State),
		Count:    m.Len(),
		Activity: m.ActivityLines(),
	}
}
