// Package apiclient — HTTP-клиент серверных операций пайплайна
// (verify, acknowledge, store, entitlements), используемый устройством.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wanderplan/entitlements/internal/models"
)

// Client ходит на серверные операции пайплайна.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New создает клиент. authToken — bearer локального провайдера
// аутентификации, может быть пустым.
func New(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type body struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, reqBody any) (*http.Request, error) {
	var buf bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Verify проверяет покупку на сервере и переводит ответ в тегированный исход:
// транспортная ошибка — NetworkFailure, 500 auth — AuthFailure,
// остальные отказы — Invalid с кодом ошибки сервера.
func (c *Client) Verify(ctx context.Context, tripID, userID, token, productID string) models.VerificationOutcome {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/billing/verify", map[string]string{
		"tripId":        tripID,
		"userId":        userID,
		"purchaseToken": token,
		"productId":     productID,
	})
	if err != nil {
		return models.NetworkFailure()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NetworkFailure()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var out struct {
			OK                   bool   `json:"ok"`
			OrderID              string `json:"orderId"`
			AcknowledgementState int    `json:"acknowledgementState"`
			ExpiryTimeMillis     int64  `json:"expiryTimeMillis"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || !out.OK {
			return models.NetworkFailure()
		}
		return models.Valid(out.ExpiryTimeMillis, out.OrderID, out.AcknowledgementState == 1)
	}

	var errBody body
	_ = json.NewDecoder(resp.Body).Decode(&errBody)

	if resp.StatusCode >= http.StatusInternalServerError {
		if errBody.Error == "auth" {
			return models.AuthFailure()
		}
		return models.NetworkFailure()
	}
	if errBody.Error == "" {
		errBody.Error = "verify"
	}
	return models.Invalid(errBody.Error)
}

// Acknowledge подтверждает покупку через сервер.
func (c *Client) Acknowledge(ctx context.Context, token, productID string) error {
	const op = "apiclient.Acknowledge"

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/billing/acknowledge", map[string]string{
		"purchaseToken": token,
		"productId":     productID,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody body
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, errBody.Error)
	}
	return nil
}

// Store записывает entitlement через сервер. stored=false означает мягкий
// отказ: запись принята, но до хранилища пока не доехала.
func (c *Client) Store(ctx context.Context, rec models.EntitlementRecord) (bool, error) {
	const op = "apiclient.Store"

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/billing/store", map[string]any{
		"tripId":    rec.TripID,
		"userId":    rec.UserID,
		"expiresAt": rec.ExpiresAt,
		"orderId":   rec.OrderID,
		"source":    string(rec.Source),
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody body
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return false, fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, errBody.Error)
	}

	var out struct {
		OK     bool `json:"ok"`
		Stored bool `json:"stored"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !out.OK {
		return false, errors.New(op + ": server returned ok=false")
	}
	return out.Stored, nil
}

// ListActive возвращает действующие записи для сверки локального кеша.
func (c *Client) ListActive(ctx context.Context, tripID, userID string) ([]models.EntitlementRecord, error) {
	const op = "apiclient.ListActive"

	q := url.Values{}
	if tripID != "" {
		q.Set("tripId", tripID)
	}
	if userID != "" {
		q.Set("userId", userID)
	}
	path := "/api/v1/billing/entitlements"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var out struct {
		OK           bool                       `json:"ok"`
		Entitlements []models.EntitlementRecord `json:"entitlements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out.Entitlements, nil
}
