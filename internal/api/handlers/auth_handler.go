package handlers

import (
	"errors"
	"net/http"
	"time"

	"signalhub/internal/api/middleware"
	"signalhub/internal/service"
)

// AuthHandler вход и выход администраторов дашборда.
//
// Endpoints:
// - POST /api/v1/auth/login - вход, токен в ответе и в cookie
// - POST /api/v1/auth/logout - выход
// - GET /api/v1/auth/session - текущая сессия (требует сессию)
type AuthHandler struct {
	authService  service.AuthServiceInterface
	secureCookie bool
}

// NewAuthHandler создает AuthHandler. secureCookie включает флаг Secure (HTTPS).
func NewAuthHandler(authService service.AuthServiceInterface, secureCookie bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookie: secureCookie}
}

// LoginRequest тело POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse ответ GET /auth/session
type SessionResponse struct {
	AdminID   int       `json:"admin_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login проверяет email и пароль.
//
// POST /api/v1/auth/login
//
// Response 200 OK:
//
//	{"token": "…", "expires_at": "…", "admin": {"id": 1, "email": "admin@example.com", ...}}
//
// Response 401: {"error": "invalid email or password"}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	res, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, err.Error(), nil)
			return
		}
		respondWithServiceError(w, r, "Failed to login", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respondWithJSON(w, http.StatusOK, res)
}

// Logout закрывает сессию и стирает cookie. Без токена тоже 200.
//
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), middleware.TokenFromRequest(r)); err != nil {
		respondWithServiceError(w, r, "Failed to logout", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "logged out"})
}

// Session возвращает сессию, положенную middleware.RequireSession.
//
// GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}
	respondWithJSON(w, http.StatusOK, SessionResponse{
		AdminID:   s.AdminID,
		Email:     s.Email,
		ExpiresAt: s.ExpiresAt,
	})
}
