// Package middlewarectx содержит HTTP middleware пайплайна покупок.
//
// UserContext достаёт идентификатор пользователя из bearer-токена локального
// провайдера аутентификации и кладёт его в контекст запроса. Заголовок
// необязателен: контракты операций допускают анонимный вызов, но предъявленный
// токен обязан быть валидным.
package middlewarectx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wanderplan/entitlements/internal/http/response"
	"github.com/wanderplan/entitlements/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// UserUID — ключ идентификатора пользователя в контексте.
const UserUID Key = "user_uid"

// UserContext возвращает middleware, разбирающий bearer-токен.
// Невалидный токен — 401; отсутствующий заголовок пропускается дальше.
func UserContext(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.UserContext"

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("auth"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			uid, err := parseUID(tokenStr, secret)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("auth"))
				return
			}

			ctx := context.WithValue(r.Context(), UserUID, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseUID(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	uid, ok := claims["uid"].(string)
	if !ok || uid == "" {
		return "", fmt.Errorf("uid claim is missing")
	}
	return uid, nil
}
