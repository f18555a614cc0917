package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/docauth/internal/metrics"
	"github.com/hitoshi/docauth/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// AuthService はハンドラーとセッションミドルウェアの両方で使用する。
	AuthService       AuthServiceInterface
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// Metrics がnilの場合はHTTPメトリクスを記録しない。
	Metrics metrics.MetricsCollector
	// Gatherer がnilの場合は/metricsを公開しない。
	Gatherer prometheus.Gatherer
}

// Endpoints は公開するエンドポイントの一覧。起動ログに使用する。
var Endpoints = []string{
	"POST /api/auth/signup-custom",
	"POST /api/auth/signin",
	"POST /api/auth/signout",
	"GET  /api/auth/session",
	"GET  /health",
	"GET  /metrics",
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Metrics → Recovery → CORS → SecurityHeaders
//
// Recoveryが返す500もLoggingとMetricsに記録される。
//
// GET /api/auth/session のみSessionMiddlewareでBearerトークンを検証する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService)

	r.Get("/health", Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup-custom", authHandler.SignupCustom)
		r.Post("/signin", authHandler.Signin)
		r.Post("/signout", authHandler.Signout)

		r.With(middleware.NewSessionMiddleware(deps.AuthService)).Get("/session", authHandler.Session)
	})

	return r
}
