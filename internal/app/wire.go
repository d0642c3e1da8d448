package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/ballotbuddies/internal/alert"
	"github.com/hitoshi/ballotbuddies/internal/auth"
	"github.com/hitoshi/ballotbuddies/internal/cache"
	"github.com/hitoshi/ballotbuddies/internal/config"
	"github.com/hitoshi/ballotbuddies/internal/elections"
	"github.com/hitoshi/ballotbuddies/internal/explore"
	"github.com/hitoshi/ballotbuddies/internal/mail"
	"github.com/hitoshi/ballotbuddies/internal/message"
	"github.com/hitoshi/ballotbuddies/internal/metrics"
	"github.com/hitoshi/ballotbuddies/internal/middleware"
	"github.com/hitoshi/ballotbuddies/internal/repository"
	"github.com/hitoshi/ballotbuddies/internal/security"
	"github.com/hitoshi/ballotbuddies/internal/user"
	"github.com/hitoshi/ballotbuddies/internal/voter"
)

const externalAPITimeout = 15 * time.Second

// services はserveとworkerで共有するサービス群。
type services struct {
	registry *prometheus.Registry
	metrics  *metrics.Collector

	sessionRepo *repository.PostgresSessionRepo
	voterRepo   *repository.PostgresVoterRepo

	messages *message.Service
	alerts   *alert.Service
	voters   *voter.Service
	auth     *auth.Service
	users    *user.Service
	explore  *explore.Client
	mailer   *mail.Mailer

	closers []func() error
}

// Close は外部接続を閉じる。
func (s *services) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// buildServices はリポジトリ・外部クライアント・ドメインサービスを組み立てる。
// 認証サービスと有権者サービスは相互に参照するため、認証サービスを先に生成して後から有権者サービスを設定する。
func buildServices(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*services, error) {
	s := &services{registry: newRegistry()}
	s.metrics = metrics.NewCollector(s.registry)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	s.sessionRepo = repository.NewPostgresSessionRepo(db)
	tokenRepo := repository.NewPostgresLoginTokenRepo(db)
	s.voterRepo = repository.NewPostgresVoterRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)

	// キャッシュ
	exploreCache, closeCache, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	if closeCache != nil {
		s.closers = append(s.closers, closeCache)
	}

	// メール
	sender, err := newMailSender(cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.mailer = mail.NewMailer(sender, cfg.MailFrom, s.metrics, logger)

	// 外部API
	// 探索APIはレスポンス中のnextリンクを辿るため、接続先IPを検査するクライアントを使う
	guard := security.NewSSRFGuard()
	statusClient := elections.NewClient(&http.Client{Timeout: externalAPITimeout}, cfg.ElectionsStatusAPI, logger)
	s.explore = explore.NewClient(guard.NewSafeClient(externalAPITimeout), exploreCache, guard, s.metrics, explore.Config{
		BaseURL:     cfg.ExploreAPI,
		CacheTTL:    cfg.ExploreCacheTTL,
		FetchBudget: cfg.ExploreFetchBudget,
	}, logger)

	// ドメインサービス
	s.messages = message.NewService(messageRepo, security.NewContentSanitizer(), logger)
	s.alerts = alert.NewService(profileRepo, s.voterRepo, messageRepo, s.messages, logger)
	s.auth = auth.NewService(userRepo, s.sessionRepo, tokenRepo, nil, s.mailer, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		LoginTokenTTL: cfg.LoginTokenTTL,
		BaseURL:       cfg.BaseURL,
	}, logger)
	s.voters = voter.NewService(userRepo, s.voterRepo, profileRepo, statusClient, s.alerts, s.auth, logger)
	s.auth.SetVoters(s.voters)
	s.users = user.NewService(userRepo, s.sessionRepo, s.voterRepo, messageRepo, logger)

	return s, nil
}

// newRegistry はランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newCache はREDIS_URLが設定されていればRedis、なければプロセス内キャッシュを返す。
// 戻り値のcloseはRedis利用時のみ非nil。
func newCache(cfg *config.Config) (cache.Cache, func() error, error) {
	if cfg.RedisURL == "" {
		return cache.NewLocalCache(cfg.LocalCacheBytes, cache.KeyPrefix), nil, nil
	}
	client, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return cache.NewRedisCache(client, cache.KeyPrefix), client.Close, nil
}

// newMailSender はSMTP_HOSTが設定されていればSMTP送信、なければログ出力のみの送信手段を返す。
func newMailSender(cfg *config.Config, logger *slog.Logger) (mail.Sender, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST is not set; emails will be logged instead of sent")
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// rateLimiterConfig は設定値（req/min、req/hour）をリミッターの毎秒レートに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitInvite > 0 {
		rl.InviteRate = rate.Limit(float64(cfg.RateLimitInvite) / 3600.0)
		rl.InviteBurst = cfg.RateLimitInvite
	}
	return rl
}
