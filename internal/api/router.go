package api

import (
	"log/slog"
	"net/http"
	"time"

	"recurring-billing/internal/api/handler"
	mw "recurring-billing/internal/api/middleware"
	"recurring-billing/internal/config"
	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/domain/schedule"

	_ "recurring-billing/docs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

func SetupRouter(rateLimiter *mw.RateLimiterMiddleware, scheduleService schedule.ScheduleService, invoiceService invoice.InvoiceService, generator invoice.Generator, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, rateLimiter, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupScheduleRoutes(router, scheduleService, generator, cfg, logger)
	setupInvoiceRoutes(router, invoiceService, cfg, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	setupSwaggerEndpoint(router, logger)

	return router
}

func setupMiddleware(router *chi.Mux, rateLimiter *mw.RateLimiterMiddleware, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(rateLimiter.Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupSwaggerEndpoint(router *chi.Mux, logger *slog.Logger) {
	logger.Info("Setting up Swagger UI endpoint", "path", "/swagger/")
	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

func setupScheduleRoutes(router *chi.Mux, svc schedule.ScheduleService, generator invoice.Generator, cfg *config.Config, logger *slog.Logger) {
	scheduleHandler := handler.NewScheduleHandler(svc, generator, logger)
	authHandler := handler.NewAuthHandler(*cfg, logger)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.GenerateBearerToken)
	})

	router.Route("/schedules", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", scheduleHandler.CreateSchedule)
		r.Get("/", scheduleHandler.ListSchedules)
		r.Route("/{scheduleID}", func(r chi.Router) {
			r.Get("/", scheduleHandler.GetSchedule)
			r.Put("/", scheduleHandler.UpdateSchedule)
			r.Delete("/", scheduleHandler.DeleteSchedule)
			r.Post("/pause", scheduleHandler.PauseSchedule)
			r.Post("/resume", scheduleHandler.ResumeSchedule)
			r.Post("/cancel", scheduleHandler.CancelSchedule)
			r.Post("/generate", scheduleHandler.GenerateNow)
			r.Get("/notifications", scheduleHandler.GetNotificationPlan)
		})
	})
}

func setupInvoiceRoutes(router *chi.Mux, svc invoice.InvoiceService, cfg *config.Config, logger *slog.Logger) {
	invoiceHandler := handler.NewInvoiceHandler(svc, logger)

	router.Route("/invoices", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Get("/", invoiceHandler.ListInvoices)
		r.Route("/{invoiceID}", func(r chi.Router) {
			r.Get("/", invoiceHandler.GetInvoice)
			r.Patch("/status", invoiceHandler.UpdateInvoiceStatus)
			r.Get("/surcharge", invoiceHandler.GetSurcharge)
		})
	})
}
