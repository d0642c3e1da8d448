package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/ballotbuddies/internal/middleware"
)

// NewOpsRouter はワーカー用の運用エンドポイント（/health と /metrics）だけを持つルーターを返す。
// コンテナのhealthcheckサブコマンドはAPIと同じく /health を参照する。
func NewOpsRouter(checker HealthChecker, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", NewHealthHandler(checker))
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	return r
}

// VoterService は有権者・友人ハンドラーの両方を満たすサービス。
type VoterService interface {
	VoterServiceInterface
	FriendsServiceInterface
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 有権者・友人
	VoterService VoterService

	// 通知設定
	ProfileService ProfileServiceInterface

	// 探索
	ExploreService ExploreServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）、ヘルスチェック、メトリクス、探索APIはセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	// CORS ミドルウェアを上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	voterHandler := NewVoterHandler(deps.VoterService)
	friendsHandler := NewFriendsHandler(deps.VoterService)
	profileHandler := NewProfileHandler(deps.VoterService, deps.ProfileService)
	exploreHandler := NewExploreHandler(deps.ExploreService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.cookieConfig())

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート（メールリンク）
	r.Route("/auth", func(r chi.Router) {
		// POST /auth/login - メール送信を伴うためIP単位のレート制限を追加
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Get("/verify", authHandler.Verify)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// 探索APIの公開プロキシ
	r.Route("/api/explore", func(r chi.Router) {
		r.Get("/proposals", exploreHandler.ListProposals)
		r.Get("/positions", exploreHandler.ListPositions)
		r.Get("/elections/{id}", exploreHandler.GetElection)
		r.Get("/districts/{id}", exploreHandler.GetDistrict)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.AuthConfig.cookieConfig()))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 本人の有権者情報
		r.Route("/api/voters/me", func(r chi.Router) {
			r.Get("/", voterHandler.GetMe)
			r.Put("/", voterHandler.UpdateMe)
		})

		// 友人・近隣
		r.Route("/api/friends", func(r chi.Router) {
			r.Get("/", friendsHandler.ListCommunity)
			// POST /api/friends/invite - 招待メール送信を伴うため招待専用レート制限を追加
			r.With(deps.RateLimiter.InviteMiddleware()).Post("/invite", friendsHandler.Invite)

			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", friendsHandler.GetFriend)
				r.Post("/ignore", friendsHandler.Ignore)
			})
		})

		// 通知設定と下書き
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
			r.Post("/viewed", profileHandler.MarkViewed)
		})
		r.Get("/api/messages/draft", profileHandler.GetDraft)
		r.Delete("/api/messages/draft", profileHandler.ClearDraft)

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
