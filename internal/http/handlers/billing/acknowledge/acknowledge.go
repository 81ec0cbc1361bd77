// Package acknowledge обрабатывает подтверждение покупки авторитету.
package acknowledge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/wanderplan/entitlements/internal/http/response"
	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/metrics"
	"github.com/wanderplan/entitlements/internal/services/acknowledgment"
)

// Request представляет запрос на подтверждение покупки.
type Request struct {
	PurchaseToken string `json:"purchaseToken" validate:"required"`
	ProductID     string `json:"productId" validate:"required"`
}

// Service определяет интерфейс подтверждения покупки.
type Service interface {
	Acknowledge(ctx context.Context, token, productID string) error
}

// Handler обрабатывает запросы на подтверждение покупки.
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
// @Summary Подтвердить покупку
// @Description Однократно подтверждает покупку авторитету; повторный вызов безопасен
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен и продукт"
// @Success 200 {object} response.Body
// @Failure 400 {object} response.ErrorResponse "missing / product / ack"
// @Failure 500 {object} response.ErrorResponse "auth"
// @Router /billing/acknowledge [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.acknowledge"
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

	err := h.service.Acknowledge(r.Context(), req.PurchaseToken, req.ProductID)
	switch {
	case err == nil:
		metrics.AcknowledgeTotal.WithLabelValues("ok").Inc()
		render.JSON(w, r, response.OK())
	case errors.Is(err, acknowledgment.ErrProductMismatch):
		metrics.AcknowledgeTotal.WithLabelValues("product").Inc()
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("product"))
	case errors.Is(err, acknowledgment.ErrNoCredential):
		metrics.AcknowledgeTotal.WithLabelValues("auth").Inc()
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("auth"))
	default:
		metrics.AcknowledgeTotal.WithLabelValues("ack").Inc()
		log.Error("failed to acknowledge purchase", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("ack"))
	}
}
