// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Каждый ответ сервера —
// это структура с полем ok и, при неуспехе, коротким кодом ошибки.
package response

import (
	"github.com/go-playground/validator"
)

// Body описывает стандартную структуру JSON-ответа сервера.
// Поле OK — признак успеха запроса.
// Поле Error — короткий код ошибки ("missing", "product", "auth", ...).
type Body struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ErrorResponse — структура ошибки для Swagger-документации.
// Используется в аннотациях @Failure как возвращаемый тип ошибки.
type ErrorResponse struct {
	OK    bool   `json:"ok" example:"false"`
	Error string `json:"error" example:"missing"`
}

// OK возвращает успешный Body без дополнительных полей.
func OK() Body {
	return Body{OK: true}
}

// Error возвращает Body с ошибкой и переданным кодом.
func Error(code string) Body {
	return Body{OK: false, Error: code}
}

// ValidationError сводит ошибки валидации входного JSON к коду "missing":
// контракт эндпоинтов не различает, какое именно обязательное поле потеряно.
func ValidationError(_ validator.ValidationErrors) Body {
	return Body{OK: false, Error: "missing"}
}
