// Package playbilling — клиент биллинг-авторитета (Google Play Developer API).
// Через него проходят два обращения пайплайна: чтение состояния подписки
// и однократное подтверждение (acknowledge) покупки.
package playbilling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrRejected возвращается, когда авторитет получил запрос и отказал.
// Отличается от транспортной ошибки: ответ был, покупка не прошла.
var ErrRejected = errors.New("playbilling: authority rejected request")

// Config — настройки доступа к авторитету.
type Config struct {
	PackageName        string
	ServiceAccountJSON string
}

// SubscriptionPurchase — усечённый ответ авторитета о состоянии подписки.
// CancelReason равен nil, когда подписка не отменялась.
type SubscriptionPurchase struct {
	ExpiryTimeMillis int64
	OrderID          string
	CancelReason     *int64
	Acknowledged     bool
	AutoRenewing     bool
}

// Client оборачивает androidpublisher.Service. Учётные данные сервисного
// аккаунта обмениваются на access token при создании клиента, поэтому
// ошибка конструктора — это ошибка инфраструктуры, а не покупки.
type Client struct {
	cfg Config
	svc *androidpublisher.Service
}

// New создает клиент авторитета по учётным данным сервисного аккаунта.
func New(ctx context.Context, cfg Config) (*Client, error) {
	const op = "playbilling.New"

	cfg.PackageName = strings.TrimSpace(cfg.PackageName)
	if cfg.PackageName == "" {
		return nil, fmt.Errorf("%s: package name is empty", op)
	}
	if strings.TrimSpace(cfg.ServiceAccountJSON) == "" {
		return nil, fmt.Errorf("%s: service account json is empty", op)
	}

	svc, err := androidpublisher.NewService(ctx,
		option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)),
		option.WithScopes(androidpublisher.AndroidpublisherScope),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Client{cfg: cfg, svc: svc}, nil
}

// GetSubscription читает состояние подписки для пары (productID, token).
// При полученном, но неуспешном ответе возвращает ErrRejected.
func (c *Client) GetSubscription(ctx context.Context, productID, token string) (*SubscriptionPurchase, error) {
	const op = "playbilling.GetSubscription"

	resp, err := c.svc.Purchases.Subscriptions.Get(c.cfg.PackageName, productID, token).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%s: %w: %d", op, ErrRejected, apiErr.Code)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cancel *int64
	if resp.UserCancellationTimeMillis > 0 || resp.CancelReason != 0 {
		reason := resp.CancelReason
		cancel = &reason
	}

	return &SubscriptionPurchase{
		ExpiryTimeMillis: resp.ExpiryTimeMillis,
		OrderID:          resp.OrderId,
		CancelReason:     cancel,
		Acknowledged:     resp.AcknowledgementState == 1,
		AutoRenewing:     resp.AutoRenewing,
	}, nil
}

// AcknowledgeSubscription подтверждает покупку авторитету. Эндпоинт
// авторитета идемпотентен по собственному контракту, поэтому повторный
// вызов для того же токена безопасен.
func (c *Client) AcknowledgeSubscription(ctx context.Context, productID, token string) error {
	const op = "playbilling.AcknowledgeSubscription"

	req := &androidpublisher.SubscriptionPurchasesAcknowledgeRequest{}
	err := c.svc.Purchases.Subscriptions.Acknowledge(c.cfg.PackageName, productID, token, req).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s: %w: %d", op, ErrRejected, apiErr.Code)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
