package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fitclass/internal/metrics"
	"github.com/hitoshi/fitclass/internal/middleware"
	"github.com/hitoshi/fitclass/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 監視
	DB               Pinger
	MetricsCollector metrics.MetricsCollector
	MetricsGatherer  prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// スケジュール
	ScheduleService ScheduleServiceInterface

	// 予約
	BookingService BookingServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Metrics
//	  公開ルート:   RateLimit(General, IP単位)
//	  認証ルート:   Auth → RateLimit(General, ユーザー単位) → RequireRoles
//
// Cookieで認証するトークン更新・ログアウトにはCSRF検証を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.MetricsCollector
	if mc == nil {
		mc = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(metrics.Middleware(mc))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	scheduleHandler := NewScheduleHandler(deps.ScheduleService)
	bookingHandler := NewBookingHandler(deps.BookingService)

	adminOnly := middleware.RequireRoles(model.RoleAdmin, model.RoleSuperAdmin)
	traineeOnly := middleware.RequireRoles(model.RoleTrainee)
	trainerOnly := middleware.RequireRoles(model.RoleTrainer)

	// --- 監視 ---
	if deps.DB != nil {
		r.Method(http.MethodGet, "/health", NewHealthHandler(deps.DB))
	}
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/user/create", userHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
		r.Method(http.MethodGet, "/api/auth/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
			r.Post("/api/auth/refresh-token", authHandler.RefreshToken)
			r.Post("/api/auth/logout", authHandler.Logout)
		})
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth/change-password", authHandler.ChangePassword)

		r.Get("/api/user/me", userHandler.GetMyProfile)
		r.Patch("/api/user/me", userHandler.UpdateMyProfile)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/users", userHandler.ListUsers)
			r.Post("/trainers", userHandler.CreateTrainer)
			r.Patch("/users/{id}/status", userHandler.UpdateUserStatus)
		})

		r.Route("/api/schedule", func(r chi.Router) {
			r.With(adminOnly).Post("/", scheduleHandler.CreateSchedules)
			r.Get("/", scheduleHandler.ListSchedules)
			r.With(trainerOnly).Get("/my", scheduleHandler.ListMySchedules)
			r.Get("/{id}", scheduleHandler.GetSchedule)
			r.With(adminOnly).Delete("/{id}", scheduleHandler.DeleteSchedule)
		})

		r.Route("/api/booking", func(r chi.Router) {
			r.Use(traineeOnly)
			// 予約・キャンセルには専用のレート制限を追加
			r.With(deps.RateLimiter.BookingMiddleware()).Post("/book", bookingHandler.Book)
			r.Get("/my-bookings", bookingHandler.ListMyBookings)
			r.With(deps.RateLimiter.BookingMiddleware()).Delete("/{id}", bookingHandler.Cancel)
		})
	})

	return r
}
