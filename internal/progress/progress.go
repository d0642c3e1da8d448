// Package progress は選挙ステータスAPIのレスポンスから投票準備の進捗を導出する。
// 入力の欠損には寛容で、パースに失敗した場合も「未着手」として扱う。
package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// dateLayout はステータスAPIが返す日付の書式。
const dateLayout = "2006-01-02"

// Stage は投票準備の到達段階を表す。
type Stage int

const (
	StageNotStarted Stage = iota
	StageUnregistered
	StageRegistered
	StageAbsenteeRequested
	StageBallotSent
	StageBallotReturned
)

var stageNames = [...]string{
	StageNotStarted:        "not_started",
	StageUnregistered:      "unregistered",
	StageRegistered:        "registered",
	StageAbsenteeRequested: "absentee_requested",
	StageBallotSent:        "ballot_sent",
	StageBallotReturned:    "ballot_returned",
}

// String はAPIレスポンス用の段階名を返す。
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// 未完了アクションの表示文言
const (
	ActionRegister         = "Register to vote"
	ActionRequestAbsentee  = "Request an absentee ballot"
	ActionReceiveAbsentee  = "Receive your absentee ballot"
	ActionReturnAbsentee   = "Return your absentee ballot"
	ActionViewSampleBallot = "View your sample ballot"
	ActionVoteInPerson     = "Vote in person"
)

// Election は次回選挙のメタデータを表す。
type Election struct {
	ID            int
	Name          string
	Date          time.Time
	DateHumanized string
	// Days は今日から選挙日までの日数。過去の選挙は負の値になる。
	Days int
}

// Progress は有権者ひとりの投票準備の進捗を表す。
type Progress struct {
	Started    bool
	Registered bool
	Absentee   bool

	ApplicationReceived *time.Time
	BallotSent          *time.Time
	BallotReturned      *time.Time

	SampleBallot bool
	BallotURL    string

	Election *Election
	Actions  []string
}

type rawStatus struct {
	Status *struct {
		Registered                  bool    `json:"registered"`
		Absentee                    bool    `json:"absentee"`
		Ballot                      bool    `json:"ballot"`
		BallotURL                   *string `json:"ballot_url"`
		AbsenteeApplicationReceived *string `json:"absentee_application_received"`
		AbsenteeBallotSent          *string `json:"absentee_ballot_sent"`
		AbsenteeBallotReceived      *string `json:"absentee_ballot_received"`
	} `json:"status"`
	Election *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Date string `json:"date"`
	} `json:"election"`
}

// Parse はステータスJSONを解析して進捗を返す。
// nilや不正なJSONは未着手（アクションなし、選挙なし）として扱う。
func Parse(raw json.RawMessage, now time.Time) Progress {
	var p Progress
	if len(raw) == 0 {
		return p
	}

	var data rawStatus
	if err := json.Unmarshal(raw, &data); err != nil {
		return p
	}

	if data.Election != nil {
		if date, err := time.ParseInLocation(dateLayout, data.Election.Date, now.Location()); err == nil {
			p.Election = &Election{
				ID:            data.Election.ID,
				Name:          data.Election.Name,
				Date:          date,
				DateHumanized: HumanizeDate(date),
				Days:          DaysBetween(now, date),
			}
		}
	}

	if data.Status == nil {
		return p
	}

	s := data.Status
	p.Started = true
	p.Registered = s.Registered
	p.SampleBallot = s.Ballot
	if s.BallotURL != nil {
		p.BallotURL = *s.BallotURL
	}
	p.ApplicationReceived = parseDate(s.AbsenteeApplicationReceived, now.Location())
	p.BallotSent = parseDate(s.AbsenteeBallotSent, now.Location())
	p.BallotReturned = parseDate(s.AbsenteeBallotReceived, now.Location())
	p.Absentee = s.Absentee || p.ApplicationReceived != nil

	p.Actions = p.outstandingActions()
	return p
}

func (p *Progress) outstandingActions() []string {
	actions := []string{}
	if !p.Registered {
		actions = append(actions, ActionRegister)
	}

	// 終了した選挙に対しては登録以外の手続きを求めない
	if p.Election != nil && p.Election.Days < 0 {
		return actions
	}

	if p.Absentee {
		if p.ApplicationReceived == nil {
			actions = append(actions, ActionRequestAbsentee)
		}
		if p.BallotSent == nil {
			actions = append(actions, ActionReceiveAbsentee)
		}
		if p.BallotReturned == nil {
			actions = append(actions, ActionReturnAbsentee)
		}
		return actions
	}

	if p.SampleBallot && p.BallotURL != "" {
		actions = append(actions, ActionViewSampleBallot)
	}
	if p.Election != nil {
		actions = append(actions, ActionVoteInPerson)
	}
	return actions
}

// Stage は現在の到達段階を返す。
func (p Progress) Stage() Stage {
	switch {
	case !p.Started:
		return StageNotStarted
	case !p.Registered:
		return StageUnregistered
	case p.BallotReturned != nil:
		return StageBallotReturned
	case p.BallotSent != nil:
		return StageBallotSent
	case p.ApplicationReceived != nil:
		return StageAbsenteeRequested
	default:
		return StageRegistered
	}
}

// Done は未完了のアクションがないかを返す。
func (p Progress) Done() bool {
	return p.Started && len(p.Actions) == 0
}

// Summary は活動通知に使う三人称の進捗文を返す（例: "has received their absentee ballot"）。
func (p Progress) Summary() string {
	switch p.Stage() {
	case StageUnregistered:
		return "is not yet registered to vote"
	case StageBallotReturned:
		return "has returned their absentee ballot"
	case StageBallotSent:
		return "has received their absentee ballot"
	case StageAbsenteeRequested:
		return "has requested an absentee ballot"
	case StageRegistered:
		if p.Absentee {
			return "is registered to vote absentee"
		}
		if p.SampleBallot {
			return "is registered and has a sample ballot available"
		}
		return "is registered to vote"
	default:
		return "has started preparing to vote"
	}
}

// Activity は表示名と進捗から活動通知の1行を組み立てる（例: "Jane Doe is registered to vote"）。
func Activity(name string, p Progress) string {
	return name + " " + p.Summary()
}

// HumanizeDate は日付を "Tuesday, November 2nd" の形式で返す。
func HumanizeDate(date time.Time) string {
	return fmt.Sprintf("%s, %s %s", date.Weekday(), date.Month(), humanize.Ordinal(date.Day()))
}

// DaysBetween はnowの日付からdateまでの日数を返す。時刻は切り捨てる。
func DaysBetween(now, date time.Time) int {
	from := truncateDay(now)
	to := truncateDay(date.In(now.Location()))
	return int(math.Round(to.Sub(from).Hours() / 24))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func parseDate(value *string, loc *time.Location) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, *value, loc)
	if err != nil {
		return nil
	}
	return &t
}
