// Package verification реализует проверку покупки у биллинг-авторитета.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/models"
	"github.com/wanderplan/entitlements/internal/playbilling"
)

// Authority определяет read-эндпоинт биллинг-авторитета.
type Authority interface {
	GetSubscription(ctx context.Context, productID, token string) (*playbilling.SubscriptionPurchase, error)
}

// Service проверяет покупку: сначала соответствие продукта каталожному,
// затем состояние подписки у авторитета. Authority равен nil, когда
// учётные данные сервисного аккаунта не настроены.
type Service struct {
	authority       Authority
	expectedProduct string
	log             *slog.Logger
	now             func() time.Time
}

// New создает новый экземпляр Service.
func New(authority Authority, expectedProduct string, log *slog.Logger) *Service {
	return &Service{
		authority:       authority,
		expectedProduct: expectedProduct,
		log:             log,
		now:             time.Now,
	}
}

// Verify возвращает тегированный исход проверки токена для (tripID, productID).
// Несовпадение продукта отсекается до обращения к авторитету: это экономит
// сетевой вызов и не даёт применить токен к чужому продукту.
func (s *Service) Verify(ctx context.Context, tripID, userID, token, productID string) models.VerificationOutcome {
	const op = "services.verification.Verify"
	log := s.log.With(
		slog.String("op", op),
		slog.String("trip_id", tripID),
		sl.Secret("purchase_token", token),
	)

	if productID != s.expectedProduct {
		log.Warn("product mismatch", slog.String("product_id", productID))
		return models.Invalid("product")
	}

	if s.authority == nil {
		log.Error("authority credential is not configured")
		return models.AuthFailure()
	}

	purchase, err := s.authority.GetSubscription(ctx, productID, token)
	if err != nil {
		if errors.Is(err, playbilling.ErrRejected) {
			log.Warn("authority rejected token", sl.Err(err))
			return models.Invalid("verify")
		}
		log.Error("authority unreachable", sl.Err(err))
		return models.NetworkFailure()
	}

	nowMillis := s.now().UnixMilli()
	if purchase.CancelReason != nil {
		log.Warn("purchase is canceled", slog.Int64("cancel_reason", *purchase.CancelReason))
		return models.Invalid("canceled")
	}
	if purchase.ExpiryTimeMillis <= nowMillis {
		log.Warn("purchase is expired", slog.Int64("expiry_time_millis", purchase.ExpiryTimeMillis))
		return models.Invalid("expired")
	}

	log.Info("purchase verified",
		slog.Int64("expiry_time_millis", purchase.ExpiryTimeMillis),
		slog.Bool("acknowledged", purchase.Acknowledged))
	return models.Valid(purchase.ExpiryTimeMillis, purchase.OrderID, purchase.Acknowledged)
}
