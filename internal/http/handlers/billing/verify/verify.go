// Package verify обрабатывает проверку покупки у биллинг-авторитета.
package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/wanderplan/entitlements/internal/http/middlewarectx"
	"github.com/wanderplan/entitlements/internal/http/response"
	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/metrics"
	"github.com/wanderplan/entitlements/internal/models"
)

// Request представляет запрос на проверку покупки.
type Request struct {
	TripID        string `json:"tripId" validate:"required"`
	UserID        string `json:"userId"`
	PurchaseToken string `json:"purchaseToken" validate:"required"`
	ProductID     string `json:"productId" validate:"required"`
}

// Response представляет успешный ответ проверки.
type Response struct {
	OK                   bool   `json:"ok"`
	TripID               string `json:"tripId"`
	UserID               string `json:"userId,omitempty"`
	OrderID              string `json:"orderId,omitempty"`
	AcknowledgementState int    `json:"acknowledgementState"`
	ExpiryTimeMillis     int64  `json:"expiryTimeMillis"`
}

// Service определяет интерфейс проверки покупки.
type Service interface {
	Verify(ctx context.Context, tripID, userID, token, productID string) models.VerificationOutcome
}

// Handler обрабатывает запросы на проверку покупки.
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
// @Summary Проверить покупку
// @Description Проверяет purchase token у биллинг-авторитета для пары (productId, token)
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные покупки"
// @Success 200 {object} Response "Покупка действительна"
// @Failure 400 {object} response.ErrorResponse "missing / product / verify"
// @Failure 500 {object} response.ErrorResponse "auth / network"
// @Router /billing/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.verify"
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

	outcome := h.service.Verify(r.Context(), req.TripID, userID, req.PurchaseToken, req.ProductID)
	metrics.VerifyTotal.WithLabelValues(string(outcome.State)).Inc()

	switch outcome.State {
	case models.VerificationValid:
		ackState := 0
		if outcome.Acknowledged {
			ackState = 1
		}
		render.JSON(w, r, Response{
			OK:                   true,
			TripID:               req.TripID,
			UserID:               userID,
			OrderID:              outcome.OrderID,
			AcknowledgementState: ackState,
			ExpiryTimeMillis:     outcome.ExpiryTimeMillis,
		})
	case models.VerificationAuthFailure:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("auth"))
	case models.VerificationNetworkFailure:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("network"))
	default:
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(outcome.Reason))
	}
}
