// Package alert はプロフィールの鮮度（staleness）計算と通知可否の判定を提供する。
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ballotbuddies/internal/message"
	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/progress"
	"github.com/hitoshi/ballotbuddies/internal/repository"
)

const day = 24 * time.Hour

// 通知までの鮮度のしきい値
const (
	IncompleteThreshold = 30 * day
	ImminentThreshold   = 1 * day
	PendingThreshold    = 14 * day
	DoneThreshold       = 90 * day
)

var errVoterMissing = errors.New("voter not found for profile")

// VoterFinder は有権者の取得インターフェース。
type VoterFinder interface {
	FindByID(ctx context.Context, id string) (*model.Voter, error)
}

// DraftFinder は下書きを作成せずに参照するインターフェース。
type DraftFinder interface {
	FindDraft(ctx context.Context, profileID string) (*model.Message, error)
}

// Facts は通知判定に使う有権者側の事実。
type Facts struct {
	Complete     bool
	Actions      int
	HasElection  bool
	ElectionDays int
}

// FactsFor は有権者の本人情報とステータスから判定用の事実を取り出す。
func FactsFor(v *model.Voter, now time.Time) Facts {
	p := progress.Parse(v.Status, now)
	f := Facts{
		Complete: v.Complete(),
		Actions:  len(p.Actions),
	}
	if p.Election != nil {
		f.HasElection = true
		f.ElectionDays = p.Election.Days
	}
	return f
}

// Staleness は最終通知日時と最終閲覧日時のうち新しい方からの経過時間を日単位で切り捨てて返す。
// ゼロ値の日時はnowとして扱う。
func Staleness(now, lastAlerted, lastViewed time.Time) time.Duration {
	if lastAlerted.IsZero() {
		lastAlerted = now
	}
	if lastViewed.IsZero() {
		lastViewed = now
	}

	delta := now.Sub(lastAlerted)
	if d := now.Sub(lastViewed); d < delta {
		delta = d
	}
	if delta < 0 {
		return 0
	}
	return delta / day * day
}

// ShouldAlert は通知設定と有権者の状況から通知すべきかを判定する。上から順に最初に一致した規則を採用する。
func ShouldAlert(p *model.Profile, f Facts) bool {
	switch {
	case p.NeverAlert:
		return false
	case p.AlwaysAlert:
		return true
	case !f.Complete:
		return p.Staleness > IncompleteThreshold
	case f.Actions > 0 && f.HasElection && f.ElectionDays > 0 && f.ElectionDays < 7:
		return p.Staleness > ImminentThreshold
	case f.Actions > 0:
		return p.Staleness > PendingThreshold
	default:
		return p.Staleness > DoneThreshold
	}
}

// Service はプロフィールと通知のサービス層。
type Service struct {
	profiles repository.ProfileRepository
	voters   VoterFinder
	drafts   DraftFinder
	messages *message.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profiles repository.ProfileRepository,
	voters VoterFinder,
	drafts DraftFinder,
	messages *message.Service,
	logger *slog.Logger,
) *Service {
	return &Service{
		profiles: profiles,
		voters:   voters,
		drafts:   drafts,
		messages: messages,
		logger:   logger,
		now:      time.Now,
	}
}

// GetByVoterID は有権者のプロフィールを返す。
func (s *Service) GetByVoterID(ctx context.Context, voterID string) (*model.Profile, error) {
	p, err := s.profiles.FindByVoterID(ctx, voterID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return p, nil
}

// Draft はプロフィールの下書きを返す。存在しない場合は作成する。
func (s *Service) Draft(ctx context.Context, p *model.Profile) (*model.Message, error) {
	return s.messages.GetDraft(ctx, p.ID)
}

// CanAlert は空でない下書きがあるかを返す。下書きは作成しない。
func (s *Service) CanAlert(ctx context.Context, p *model.Profile) (bool, error) {
	draft, err := s.drafts.FindDraft(ctx, p.ID)
	if err != nil {
		return false, err
	}
	return draft != nil && !draft.Empty(), nil
}

func (s *Service) willAlert(ctx context.Context, p *model.Profile, now time.Time) (bool, error) {
	can, err := s.CanAlert(ctx, p)
	if err != nil || !can {
		return false, err
	}

	v, err := s.voters.FindByID(ctx, p.VoterID)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, errVoterMissing
	}
	return ShouldAlert(p, FactsFor(v, now)), nil
}

// Save は鮮度と通知予定を再計算してから保存する。
// 通知予定の判定に失敗した場合は以前の値を維持する。
func (s *Service) Save(ctx context.Context, p *model.Profile) error {
	now := s.now()
	if p.LastAlerted.IsZero() {
		p.LastAlerted = now
	}
	if p.LastViewed.IsZero() {
		p.LastViewed = now
	}
	p.Staleness = Staleness(now, p.LastAlerted, p.LastViewed)

	will, err := s.willAlert(ctx, p, now)
	if err != nil {
		s.logger.Debug("通知予定の判定をスキップしました",
			slog.String("profile_id", p.ID),
			slog.String("error", err.Error()),
		)
	} else {
		p.WillAlert = will
	}

	p.UpdatedAt = now
	if err := s.profiles.Update(ctx, p); err != nil {
		return fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}
	return nil
}

// Alert は友人の活動をプロフィールの下書きに記録する。
func (s *Service) Alert(ctx context.Context, p *model.Profile, friend *model.Voter) error {
	draft, err := s.messages.GetDraft(ctx, p.ID)
	if err != nil {
		return err
	}
	line := progress.Activity(friend.DisplayName(), progress.Parse(friend.Status, s.now()))
	return s.messages.Add(ctx, draft, friend.ID, line, true)
}

// MarkAlerted は通知済みとして記録する。saveがtrueの場合は下書きを送信済みにして保存する。
func (s *Service) MarkAlerted(ctx context.Context, p *model.Profile, save bool) error {
	p.LastAlerted = s.now()
	if !save {
		return nil
	}

	draft, err := s.messages.GetDraft(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.messages.MarkSent(ctx, draft, true); err != nil {
		return err
	}
	return s.Save(ctx, p)
}

// MarkViewed は閲覧済みとして記録する。saveがtrueの場合、常時通知でなければ下書きを既読にして保存する。
func (s *Service) MarkViewed(ctx context.Context, p *model.Profile, save bool) error {
	p.LastViewed = s.now()
	if !save {
		return nil
	}

	if !p.AlwaysAlert {
		draft, err := s.messages.GetDraft(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.messages.MarkRead(ctx, draft, true); err != nil {
			return err
		}
	}
	return s.Save(ctx, p)
}

// ClearDraft は未送信の下書きの活動を消去し、通知予定を再計算する。
func (s *Service) ClearDraft(ctx context.Context, p *model.Profile) error {
	draft, err := s.messages.GetDraft(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.messages.Clear(ctx, draft); err != nil {
		return err
	}
	return s.Save(ctx, p)
}

// UpdateSettings は通知の常時・停止設定を更新する。両方を有効にすることはできない。
func (s *Service) UpdateSettings(ctx context.Context, p *model.Profile, always, never bool) error {
	if always && never {
		return model.NewInvalidAlertConfigError()
	}
	p.AlwaysAlert = always
	p.NeverAlert = never
	return s.Save(ctx, p)
}

// ListForSweep は一括通知の処理順（鮮度の昇順）でプロフィールを返す。
func (s *Service) ListForSweep(ctx context.Context) ([]*model.Profile, error) {
	profiles, err := s.profiles.ListByStaleness(ctx)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	return profiles, nil
}
