// Package entitlements обрабатывает чтение действующих entitlement-записей.
// Этим эндпоинтом клиент сверяет локальный кеш с хранилищем на старте.
package entitlements

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/wanderplan/entitlements/internal/http/middlewarectx"
	"github.com/wanderplan/entitlements/internal/http/response"
	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/models"
)

// Response представляет список действующих записей.
type Response struct {
	OK           bool                       `json:"ok"`
	Entitlements []models.EntitlementRecord `json:"entitlements"`
}

// Service определяет интерфейс чтения действующих записей.
type Service interface {
	ListActive(ctx context.Context, tripID, userID string) ([]models.EntitlementRecord, error)
}

// Handler обрабатывает запросы на чтение entitlement-записей.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список действующих entitlement
// @Description Возвращает действующие записи для сверки локального кеша
// @Tags Billing
// @Produce  json
// @Param tripId query string false "Фильтр по поездке"
// @Param userId query string false "Фильтр по пользователю"
// @Success 200 {object} Response
// @Failure 500 {object} response.ErrorResponse
// @Router /billing/entitlements [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.entitlements"
	log := h.log.With(slog.String("op", op))

	tripID := r.URL.Query().Get("tripId")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID, _ = r.Context().Value(middlewarectx.UserUID).(string)
	}

	recs, err := h.service.ListActive(r.Context(), tripID, userID)
	if err != nil {
		log.Error("failed to list entitlements", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("store"))
		return
	}

	if recs == nil {
		recs = []models.EntitlementRecord{}
	}
	render.JSON(w, r, Response{OK: true, Entitlements: recs})
}
