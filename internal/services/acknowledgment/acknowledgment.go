// Package acknowledgment реализует подтверждение покупки авторитету.
// Подтверждение обязано произойти один раз; повторные вызовы безопасны,
// идемпотентность обеспечивает сам эндпоинт авторитета.
package acknowledgment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderplan/entitlements/internal/lib/sl"
)

// ErrProductMismatch — токен предъявлен не для каталожного продукта.
var ErrProductMismatch = errors.New("product mismatch")

// ErrNoCredential — учётные данные авторитета не настроены.
var ErrNoCredential = errors.New("authority credential is not configured")

// Authority определяет acknowledge-эндпоинт биллинг-авторитета.
type Authority interface {
	AcknowledgeSubscription(ctx context.Context, productID, token string) error
}

// Service подтверждает покупки. Authority равен nil, когда сервисный
// аккаунт не настроен.
type Service struct {
	authority       Authority
	expectedProduct string
	log             *slog.Logger
}

// New создает новый экземпляр Service.
func New(authority Authority, expectedProduct string, log *slog.Logger) *Service {
	return &Service{
		authority:       authority,
		expectedProduct: expectedProduct,
		log:             log,
	}
}

// Acknowledge подтверждает покупку авторитету. Результат бинарный:
// либо подтверждено, либо ошибка — частичных состояний нет.
func (s *Service) Acknowledge(ctx context.Context, token, productID string) error {
	const op = "services.acknowledgment.Acknowledge"
	log := s.log.With(
		slog.String("op", op),
		sl.Secret("purchase_token", token),
	)

	if productID != s.expectedProduct {
		log.Warn("product mismatch", slog.String("product_id", productID))
		return ErrProductMismatch
	}
	if s.authority == nil {
		log.Error("authority credential is not configured")
		return ErrNoCredential
	}

	if err := s.authority.AcknowledgeSubscription(ctx, productID, token); err != nil {
		log.Error("failed to acknowledge purchase", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("purchase acknowledged")
	return nil
}
