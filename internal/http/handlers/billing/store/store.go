// Package store обрабатывает запись долговременной entitlement-записи.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/wanderplan/entitlements/internal/http/middlewarectx"
	"github.com/wanderplan/entitlements/internal/http/response"
	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/metrics"
	"github.com/wanderplan/entitlements/internal/models"
	"github.com/wanderplan/entitlements/internal/services/entitlement"
)

// Request представляет запрос на запись entitlement.
type Request struct {
	TripID    string `json:"tripId" validate:"required"`
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt" validate:"required"`
	OrderID   string `json:"orderId"`
	Source    string `json:"source" validate:"omitempty,oneof=google_play demo"`
}

// Response представляет результат записи. Stored=false при мягком отказе:
// запись принята, но до хранилища не доехала и будет досведена позже.
type Response struct {
	OK     bool `json:"ok"`
	Stored bool `json:"stored"`
}

// Service определяет интерфейс записи entitlement.
type Service interface {
	Store(ctx context.Context, tripID, userID string, expiresAt int64, orderID string, source models.EntitlementSource) (bool, error)
}

// Handler обрабатывает запросы на запись entitlement.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Сохранить entitlement
// @Description Записывает entitlement по детерминированному ключу tripId-expiresAt
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Entitlement"
// @Success 200 {object} Response "ok; stored=false — мягкий отказ"
// @Failure 400 {object} response.ErrorResponse "missing"
// @Router /billing/store [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.store"
	log := h.log.With(slog.String("op", op))

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userID := req.UserID
	if userID == "" {
		userID, _ = r.Context().Value(middlewarectx.UserUID).(string)
	}

	stored, err := h.service.Store(r.Context(), req.TripID, userID, req.ExpiresAt, req.OrderID, models.EntitlementSource(req.Source))
	if err != nil {
		if errors.Is(err, entitlement.ErrNotConfigured) {
			metrics.StoreTotal.WithLabelValues("missing").Inc()
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("missing"))
			return
		}
		metrics.StoreTotal.WithLabelValues("error").Inc()
		log.Error("failed to store entitlement", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("store"))
		return
	}

	if stored {
		metrics.StoreTotal.WithLabelValues("stored").Inc()
	} else {
		metrics.StoreTotal.WithLabelValues("soft").Inc()
	}
	render.JSON(w, r, Response{OK: true, Stored: stored})
}
