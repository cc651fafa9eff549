package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/userhub/internal/metrics"
	"github.com/hitoshi/userhub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionStore  middleware.SessionStore
	SessionIssuer middleware.SessionIssuer
	SessionConfig middleware.SessionConfig
	CSRFConfig    middleware.CSRFConfig
	RateLimiter   *middleware.RateLimiter

	// ページ描画
	Pages *Pages

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// ニュース
	NewsService NewsServiceInterface

	// 監視
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
	DB             Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → SecurityHeaders → Metrics →
//	EnsureSession → Recovery → MethodOverride → CSRF → RateLimit(General)
//
// /health と /metrics はセッション層の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.Pages, deps.AuthConfig, deps.Metrics)
	userHandler := NewUserHandler(deps.UserService, deps.Pages)
	newsHandler := NewNewsHandler(deps.NewsService, deps.Pages)

	// --- 運用エンドポイント（セッション不要） ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- アプリケーションルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewEnsureSessionMiddleware(deps.SessionStore, deps.SessionIssuer, deps.SessionConfig))
		r.Use(middleware.NewRecoveryMiddleware(deps.SessionStore))
		r.Use(middleware.NewMethodOverrideMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", deps.Pages.Home)

		// 登録・ログイン（状態変更には認証専用レート制限を追加）
		r.Get("/register", authHandler.RegisterForm)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/submit", authHandler.Submit)
		r.Get("/login", authHandler.LoginForm)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
		r.Get("/logout", authHandler.Logout)

		// GitHub OAuth
		r.Get("/auth/github", authHandler.GitHubLogin)
		r.Get("/auth/github/callback", authHandler.GitHubCallback)

		// ユーザー一覧は公開
		r.Get("/users", userHandler.List)

		// --- 要ログインのルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireLoginMiddleware(deps.SessionStore))

			r.Route("/users/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Show)
				r.Get("/edit", userHandler.EditForm)
				r.Put("/", userHandler.Update)
				r.Delete("/", userHandler.Delete)
			})

			r.Get("/news", newsHandler.List)
		})
	})

	return r
}
