package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/studymap/internal/metrics"
	"github.com/hitoshi/studymap/internal/middleware"
)

// HealthChecker はDB疎通確認のためのインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	Ping() error
}

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)

	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プログラム閲覧
	UserFinder    UserFinder
	ProgramFinder ProgramFinder
	Gate          EntitlementGate

	// プラン照会
	PlanInspector PlanInspector

	// 課金
	BillingService BillingServiceInterface

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORSMiddleware → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）、Webhook（/webhooks/stripe）、ヘルスチェック、
// メトリクスはセッションミドルウェアの外に配置する。
// Stripe WebhookはCookieを持たないため、認証は署名検証のみで行う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// CORS ミドルウェアを適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	programHandler := NewProgramHandler(deps.UserFinder, deps.ProgramFinder, deps.Gate, deps.Collector)
	planHandler := NewPlanHandler(deps.UserFinder, deps.PlanInspector)
	billingHandler := NewBillingHandler(deps.BillingService, deps.UserFinder, deps.Collector)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Ping(); err != nil {
				slog.Error("health check: database unreachable", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	// Prometheusメトリクス
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.SetupMetricsRoute(deps.Gatherer))
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// Stripe Webhook（署名検証で認証する）
	r.Post("/webhooks/stripe", billingHandler.Webhook)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プログラムカタログと閲覧
		r.Route("/api/programs", func(r chi.Router) {
			r.Get("/", programHandler.ListPrograms)

			// POST /api/programs/{id}/view - 閲覧記録と判定
			r.Post("/{id}/view", programHandler.ViewProgram)
		})

		// プラン照会
		r.Get("/api/plan", planHandler.GetPlan)

		// 課金
		r.Route("/api/billing", func(r chi.Router) {
			// POST /api/billing/checkout - Checkout Session作成（専用レート制限を追加）
			r.With(deps.RateLimiter.CheckoutMiddleware()).Post("/checkout", billingHandler.StartCheckout)

			r.Get("/history", billingHandler.History)
		})
	})

	return r
}
