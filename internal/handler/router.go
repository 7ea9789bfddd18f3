package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/moamoa/internal/auth"
	"github.com/hitoshi/moamoa/internal/metrics"
	"github.com/hitoshi/moamoa/internal/middleware"
	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/validation"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	AuthRateLimiter   *middleware.RateLimiter
	Gateway           *middleware.Gateway
	Metrics           metrics.MetricsCollector
	Validator         *validation.Validator

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	Providers   []auth.OAuthProvider

	// ユーザー
	ProfileService ProfileServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → Metrics → SecurityHeaders → CORS
//
// 認証はルートごとにGatewayの戦略を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	v := deps.Validator
	if v == nil {
		v = validation.New()
	}
	gw := deps.Gateway

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, model.NewNotFoundError(""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorStatus(w, r, http.StatusMethodNotAllowed,
			model.NewNotFoundError("지원하지 않는 메서드입니다"))
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService, v, deps.AuthConfig)
	userHandler := NewUserHandler(deps.ProfileService, v)

	limited := func(h http.Handler) http.Handler { return h }
	if deps.AuthRateLimiter != nil {
		limited = deps.AuthRateLimiter.Middleware()
	}

	// --- 認証 ---
	r.Route("/auth", func(r chi.Router) {
		r.With(limited).Post("/register", authHandler.Register)
		r.With(limited, gw.Authenticate(middleware.Password())).Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(gw.Authenticate(middleware.Bearer()))
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
		})

		// 設定済みのプロバイダーのみ公開する
		for _, p := range deps.Providers {
			name := string(p.Name())
			r.Get("/"+name, authHandler.OAuthStart(p))
			r.With(gw.Authenticate(middleware.OAuth(p.Name()))).Get("/"+name+"/callback", authHandler.OAuthCallback)
		}
	})

	// --- ユーザー ---
	r.Route("/api/users/{userId}", func(r chi.Router) {
		r.Use(gw.Authenticate(middleware.Bearer()))
		r.With(gw.RequireFriendship("userId")).Get("/", userHandler.GetUser)
		r.With(gw.RequireOwnership("userId")).Patch("/", userHandler.UpdateUser)
	})

	// --- 運用 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}
