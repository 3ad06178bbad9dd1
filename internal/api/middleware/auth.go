package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"signalhub/internal/models"
	"signalhub/internal/service"
	"signalhub/pkg/crypto"
	"signalhub/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionCookieName cookie с токеном сессии администратора
const SessionCookieName = "signalhub_session"

// APIKeyHeader заголовок ключа советника
const APIKeyHeader = "X-API-Key"

// SessionValidator проверка токена сессии (AuthService)
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
}

// TokenFromRequest извлекает токен сессии: Authorization: Bearer <token>, иначе cookie
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireSession - middleware для маршрутов администратора
//
// Назначение:
// Пропускает запрос только с действующей сессией и кладет ее в context.
// Нет токена, неизвестный или истекший токен дают 401.
// Ошибка хранилища сессий дает 500.
//
// Использование:
//
//	admin := api.NewRoute().Subrouter()
//	admin.Use(middleware.RequireSession(authService))
func RequireSession(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			session, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, service.ErrSessionExpired) {
					writeError(w, http.StatusUnauthorized, "invalid or expired session")
					return
				}
				utils.L().Error("session lookup failed", utils.Err(err), utils.RequestID(RequestIDFromContext(r.Context())))
				writeError(w, http.StatusInternalServerError, "session lookup failed")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext возвращает сессию, положенную RequireSession
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*models.Session)
	return s, ok && s != nil
}

// APIKey - middleware для маршрутов советника (EA).
// Пустой key отключает проверку. Сравнение за постоянное время.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !crypto.ConstantTimeEqual(r.Header.Get(APIKeyHeader), key) {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError пишет JSON ошибку в формате handlers.ErrorResponse
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
