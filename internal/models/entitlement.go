// Package models содержит доменные структуры пайплайна покупок:
// запись об entitlement, результат проверки покупки у биллинг-авторитета
// и вспомогательные типы для JSON-запросов.
package models

import (
	"fmt"
	"time"
)

// EntitlementSource обозначает происхождение entitlement-записи.
type EntitlementSource string

const (
	// SourceGooglePlay — запись создана по подтверждённой покупке в Google Play.
	SourceGooglePlay EntitlementSource = "google_play"
	// SourceDemo — локальная демо-запись, никогда не попадает в хранилище.
	SourceDemo EntitlementSource = "demo"
)

// EntitlementRecord — долговременная запись о праве на премиум-функции.
// ExpiresAt всегда приходит из expiryTimeMillis авторитета (epoch ms),
// кроме демо-ветки, где срок вычисляется как now + фиксированное окно.
// Запись неизменяема: продление создаёт новую запись с другим DocID.
type EntitlementRecord struct {
	TripID    string            `json:"tripId" firestore:"tripId" validate:"required"`
	UserID    string            `json:"userId,omitempty" firestore:"userId,omitempty"`
	ExpiresAt int64             `json:"expiresAt" firestore:"expiresAt" validate:"required"`
	OrderID   string            `json:"orderId,omitempty" firestore:"orderId,omitempty"`
	Source    EntitlementSource `json:"source,omitempty" firestore:"source,omitempty"`
	CreatedAt time.Time         `json:"createdAt" firestore:"createdAt"`
}

// DocID возвращает детерминированный ключ документа: tripId + "-" + expiresAt.
// Повторная запись того же результата проверки даёт тот же ключ,
// поэтому дубликаты схлопываются upsert-семантикой хранилища.
func (r EntitlementRecord) DocID() string {
	return fmt.Sprintf("%s-%d", r.TripID, r.ExpiresAt)
}

// Active сообщает, действует ли запись в момент now.
func (r EntitlementRecord) Active(now time.Time) bool {
	return r.ExpiresAt > now.UnixMilli()
}

// VerificationState — закрытое множество исходов проверки покупки.
type VerificationState string

const (
	// VerificationValid — покупка действительна и не отменена.
	VerificationValid VerificationState = "valid"
	// VerificationInvalid — авторитет ответил, но покупка не прошла проверку.
	VerificationInvalid VerificationState = "invalid"
	// VerificationAuthFailure — не удалось получить учётные данные авторитета.
	VerificationAuthFailure VerificationState = "auth_failure"
	// VerificationNetworkFailure — ответ от авторитета не получен.
	VerificationNetworkFailure VerificationState = "network_failure"
)

// VerificationOutcome — тегированный результат обращения к биллинг-авторитету.
// Живёт только внутри пайплайна и никогда не сохраняется.
type VerificationOutcome struct {
	State            VerificationState
	ExpiryTimeMillis int64
	OrderID          string
	Acknowledged     bool
	Reason           string
}

// Valid собирает успешный исход проверки.
func Valid(expiryTimeMillis int64, orderID string, acknowledged bool) VerificationOutcome {
	return VerificationOutcome{
		State:            VerificationValid,
		ExpiryTimeMillis: expiryTimeMillis,
		OrderID:          orderID,
		Acknowledged:     acknowledged,
	}
}

// Invalid собирает отказ с причиной ("product", "verify", "expired", "canceled").
func Invalid(reason string) VerificationOutcome {
	return VerificationOutcome{State: VerificationInvalid, Reason: reason}
}

// AuthFailure собирает исход "нет учётных данных авторитета".
func AuthFailure() VerificationOutcome {
	return VerificationOutcome{State: VerificationAuthFailure}
}

// NetworkFailure собирает исход "авторитет недоступен".
func NetworkFailure() VerificationOutcome {
	return VerificationOutcome{State: VerificationNetworkFailure}
}
