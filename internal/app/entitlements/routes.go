// Package entitlements предоставляет маршруты для сервиса entitlement-пайплайна.
package entitlements

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/wanderplan/entitlements/internal/http/handlers/billing/acknowledge"
	entitlementslist "github.com/wanderplan/entitlements/internal/http/handlers/billing/entitlements"
	"github.com/wanderplan/entitlements/internal/http/handlers/billing/health"
	"github.com/wanderplan/entitlements/internal/http/handlers/billing/store"
	"github.com/wanderplan/entitlements/internal/http/handlers/billing/verify"
	"github.com/wanderplan/entitlements/internal/http/middlewarectx"
	"github.com/wanderplan/entitlements/internal/services/acknowledgment"
	"github.com/wanderplan/entitlements/internal/services/entitlement"
	"github.com/wanderplan/entitlements/internal/services/verification"
)

// RegisterRoutes регистрирует все маршруты приложения. Операции пайплайна
// stateless: вся необходимая информация приходит в теле запроса,
// идентификатор пользователя опционально уточняется bearer-токеном.
func RegisterRoutes(r chi.Router, logger *slog.Logger, verifyService *verification.Service, ackService *acknowledgment.Service, entitlementService *entitlement.Service, jwtSecret string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Use(middlewarectx.UserContext(jwtSecret, logger))
		r.Use(middlewarectx.RateLimitMiddleware(logger))
		r.Post("/verify", verify.New(logger, verifyService).ServeHTTP)
		r.Post("/acknowledge", acknowledge.New(logger, ackService).ServeHTTP)
		r.Post("/store", store.New(logger, entitlementService).ServeHTTP)
		r.Get("/entitlements", entitlementslist.New(logger, entitlementService).ServeHTTP)
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
