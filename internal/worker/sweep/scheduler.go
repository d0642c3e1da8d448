package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron"
)

// Runner は1回分の処理を実行する。
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Scheduler はcron式に従ってRunnerを起動する。前回のサイクルが実行中の場合は今回分をスキップする。
type Scheduler struct {
	runner   Runner
	schedule string
	cron     *cron.Cron
	running  atomic.Bool
	logger   *slog.Logger
}

// NewScheduler はSchedulerを生成する。scheduleは秒を含む6フィールドのcron式か "@hourly" などの記述子。
func NewScheduler(runner Runner, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}, nil
}

// Start は起動直後に1回実行し、以後はスケジュールに従って実行する。
// コンテキストがキャンセルされるまでブロックする。
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.cron.AddFunc(s.schedule, func() { s.Trigger(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.logger.Info("一括処理スケジューラを開始しました", slog.String("schedule", s.schedule))

	s.Trigger(ctx)
	s.cron.Start()

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("一括処理スケジューラを停止しました")
	return nil
}

// Trigger は1回分の処理を実行する。実行中の場合は何もせずfalseを返す。
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("前回の一括処理が実行中のためスキップしました")
		return false
	}
	defer s.running.Store(false)

	if err := s.runner.RunOnce(ctx); err != nil {
		s.logger.Error("一括処理サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	return true
}
