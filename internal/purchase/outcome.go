// Package purchase реализует клиентскую машину состояний пайплайна покупки:
// verify → acknowledge → store → обновление локального кеша. Каждый шаг —
// сетевой вызов, который может отказать независимо; пайплайн не повторяет
// шаги сам — повтор всегда запускается новым явным действием пользователя.
package purchase

// ErrorKind — закрытое множество причин отказа пайплайна.
type ErrorKind string

const (
	// ReasonProductUnavailable — биллинг не готов или продукта нет в каталоге.
	ReasonProductUnavailable ErrorKind = "product_unavailable"
	// ReasonPurchaseRejected — нативный флоу покупки завершился отказом.
	ReasonPurchaseRejected ErrorKind = "purchase_rejected"
	// ReasonTokenTimeout — токен не пришёл ни по событию, ни по опросу.
	ReasonTokenTimeout ErrorKind = "token_timeout"
	// ReasonVerifyInvalid — авторитет ответил, покупка не прошла проверку.
	ReasonVerifyInvalid ErrorKind = "verify_invalid"
	// ReasonVerifyAuthFailure — инфраструктурная ошибка учётных данных.
	ReasonVerifyAuthFailure ErrorKind = "verify_auth_failure"
	// ReasonVerifyNetworkFailure — авторитет недоступен.
	ReasonVerifyNetworkFailure ErrorKind = "verify_network_failure"
	// ReasonAckFailed — подтверждение не прошло; премиум не выдаётся.
	ReasonAckFailed ErrorKind = "ack_failed"
	// ReasonPersistFailed — запись не сохранена; локальный кеш мог обновиться.
	ReasonPersistFailed ErrorKind = "persist_failed"
)

// Outcome — итог прогона пайплайна. При OK=false Reason всегда заполнен.
type Outcome struct {
	OK     bool
	Reason ErrorKind
}

func success() Outcome {
	return Outcome{OK: true}
}

func failure(reason ErrorKind) Outcome {
	return Outcome{OK: false, Reason: reason}
}

// ProductContext описывает, что и для кого покупается.
type ProductContext struct {
	TripID    string
	UserID    string
	ProductID string
}

// Token — purchase token из нативного биллинга. Живёт только в памяти
// пайплайна: потребляется ровно один раз и нигде не сохраняется.
type Token struct {
	Value string
}
