// Package sweep は有権者ステータスの定期更新と通知メールの一括送信を提供する。
// 1回のサイクルは次の2段階で構成される。
//  1. 全有権者の選挙ステータスを照会し、変化があれば友人の下書きに共有して近隣を更新する
//  2. 鮮度の昇順にプロフィールを再計算し、通知予定のものへダイジェストメールを送る
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/ballotbuddies/internal/mail"
	"github.com/hitoshi/ballotbuddies/internal/message"
	"github.com/hitoshi/ballotbuddies/internal/metrics"
	"github.com/hitoshi/ballotbuddies/internal/model"
	"github.com/hitoshi/ballotbuddies/internal/progress"
)

// 通知失敗の理由ラベル
const (
	FailureNoVoter = "no_voter"
	FailureNoEmail = "no_email"
	FailureDraft   = "draft"
	FailureSend    = "send"
	FailureSave    = "save"
)

// VoterService は有権者の更新処理のインターフェース。
type VoterService interface {
	List(ctx context.Context) ([]*model.Voter, error)
	UpdateStatus(ctx context.Context, v *model.Voter) (bool, string)
	ShareStatus(ctx context.Context, v *model.Voter) error
	UpdateNeighbors(ctx context.Context, v *model.Voter) (int, error)
	Save(ctx context.Context, v *model.Voter) error
}

// ProfileService は通知処理のインターフェース。
type ProfileService interface {
	ListForSweep(ctx context.Context) ([]*model.Profile, error)
	Save(ctx context.Context, p *model.Profile) error
	Draft(ctx context.Context, p *model.Profile) (*model.Message, error)
	MarkAlerted(ctx context.Context, p *model.Profile, save bool) error
}

// VoterFinder はIDで有権者を取得する。
type VoterFinder interface {
	FindByID(ctx context.Context, id string) (*model.Voter, error)
}

// DigestComposer は下書きからHTML本文を組み立てる。
type DigestComposer interface {
	Body(msg *model.Message, electionName, electionDateHumanized string) string
}

// Sender はメールを送信する。
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Config はSweeperの設定。
type Config struct {
	MaxConcurrent int     // ステータス照会の最大並列数（デフォルト: 4）
	RatePerSecond float64 // ステータス照会の毎秒上限（デフォルト: 2）
}

// Sweeper は1回分の一括処理を実行する。
type Sweeper struct {
	voters   VoterService
	profiles ProfileService
	finder   VoterFinder
	digests  DigestComposer
	mailer   Sender
	metrics  metrics.MetricsCollector
	limiter  *rate.Limiter
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper はSweeperを生成する。設定のゼロ値は既定値で補う。
func NewSweeper(
	voters VoterService,
	profiles ProfileService,
	finder VoterFinder,
	digests DigestComposer,
	mailer Sender,
	collector metrics.MetricsCollector,
	cfg Config,
	logger *slog.Logger,
) *Sweeper {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	return &Sweeper{
		voters:   voters,
		profiles: profiles,
		finder:   finder,
		digests:  digests,
		mailer:   mailer,
		metrics:  collector,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.MaxConcurrent),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce はステータス更新と通知送信を順に実行する。
// 個々の有権者・プロフィールの失敗はログに記録して処理を続ける。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := s.now()

	if err := s.refreshVoters(ctx); err != nil {
		return err
	}
	sent, err := s.sendAlerts(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("一括処理サイクルが完了しました",
		slog.Int("alerts_sent", sent),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return nil
}

type lookupResult struct {
	voter   *model.Voter
	changed bool
}

// refreshVoters は全有権者のステータスを並列に照会し、結果を有権者ごとに順番に反映する。
// 照会のみを並列化し、友人の下書きへの書き込みは直列に行う。
func (s *Sweeper) refreshVoters(ctx context.Context) error {
	voters, err := s.voters.List(ctx)
	if err != nil {
		return fmt.Errorf("有権者一覧の取得に失敗しました: %w", err)
	}
	if len(voters) == 0 {
		s.logger.Info("更新対象の有権者はいません")
		return nil
	}

	s.logger.Info("ステータス更新を開始します", slog.Int("voter_count", len(voters)))

	results := make([]lookupResult, len(voters))
	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i, v := range voters {
		results[i].voter = v
		if !v.Complete() {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v *model.Voter) {
			defer wg.Done()
			defer func() { <-sem }()

			changed, pending := s.voters.UpdateStatus(ctx, v)
			results[i].changed = changed
			switch {
			case changed:
				s.metrics.RecordStatusLookup(metrics.StatusChanged)
			case pending != "":
				s.metrics.RecordStatusLookup(metrics.StatusPending)
			default:
				s.metrics.RecordStatusLookup(metrics.StatusUnchanged)
			}
		}(i, v)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range results {
		s.apply(ctx, r)
	}
	return nil
}

func (s *Sweeper) apply(ctx context.Context, r lookupResult) {
	v := r.voter
	if r.changed {
		if err := s.voters.ShareStatus(ctx, v); err != nil {
			s.logger.Error("活動の共有に失敗しました",
				slog.String("voter_id", v.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	added, err := s.voters.UpdateNeighbors(ctx, v)
	if err != nil {
		s.logger.Error("近隣の更新に失敗しました",
			slog.String("voter_id", v.ID),
			slog.String("error", err.Error()),
		)
	} else if added > 0 {
		s.metrics.RecordNeighborsAdded(added)
	}

	if err := s.voters.Save(ctx, v); err != nil {
		s.logger.Error("有権者の保存に失敗しました",
			slog.String("voter_id", v.ID),
			slog.String("error", err.Error()),
		)
	}
}

// sendAlerts は鮮度の昇順にプロフィールを処理し、送信した件数を返す。
func (s *Sweeper) sendAlerts(ctx context.Context) (int, error) {
	profiles, err := s.profiles.ListForSweep(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		ok, err := s.alert(ctx, p)
		if err != nil {
			s.logger.Error("通知メールの送信に失敗しました",
				slog.String("profile_id", p.ID),
				slog.String("voter_id", p.VoterID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

var errNoEmail = errors.New("voter has no email address")

// alert はプロフィールを再計算し、通知予定であればダイジェストを送って通知済みにする。
func (s *Sweeper) alert(ctx context.Context, p *model.Profile) (bool, error) {
	if err := s.profiles.Save(ctx, p); err != nil {
		return false, err
	}
	if !p.WillAlert {
		return false, nil
	}

	v, err := s.finder.FindByID(ctx, p.VoterID)
	if err != nil || v == nil {
		s.metrics.RecordAlertFailure(FailureNoVoter)
		if err == nil {
			err = fmt.Errorf("voter %s not found", p.VoterID)
		}
		return false, err
	}
	to := v.Email()
	if to == "" {
		s.metrics.RecordAlertFailure(FailureNoEmail)
		return false, errNoEmail
	}

	draft, err := s.profiles.Draft(ctx, p)
	if err != nil {
		s.metrics.RecordAlertFailure(FailureDraft)
		return false, err
	}

	if err := s.mailer.Send(ctx, s.compose(to, v, draft)); err != nil {
		s.metrics.RecordAlertFailure(FailureSend)
		return false, err
	}

	if err := s.profiles.MarkAlerted(ctx, p, true); err != nil {
		s.metrics.RecordAlertFailure(FailureSave)
		return false, err
	}
	s.metrics.RecordAlertSent()

	s.logger.Info("通知メールを送信しました",
		slog.String("profile_id", p.ID),
		slog.Int("activity_count", draft.Len()),
	)
	return true, nil
}

func (s *Sweeper) compose(to string, v *model.Voter, draft *model.Message) mail.Message {
	var days int
	var name, date string
	if e := progress.Parse(v.Status, s.now()).Election; e != nil {
		days, name, date = e.Days, e.Name, e.DateHumanized
	}

	html := s.digests.Body(draft, name, date)
	return mail.DigestMessage(to, message.Subject(days), message.PlainText(html), html)
}
