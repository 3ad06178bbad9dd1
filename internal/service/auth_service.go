package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"signalhub/internal/models"
	"signalhub/internal/repository"
	"signalhub/pkg/crypto"
	"signalhub/pkg/utils"
)

// Ошибки сервиса авторизации
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// DefaultSessionTTL время жизни сессии по умолчанию
const DefaultSessionTTL = 24 * time.Hour

// LoginResult результат входа; Token отдаётся клиенту один раз
type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Admin     *models.AdminUser `json:"admin"`
}

// PasswordVerifier проверка пароля по bcrypt хешу
type PasswordVerifier interface {
	Verify(password, hash string) error
}

// AuthService сессии администраторов дашборда.
//
// Вход: email + пароль против admin_users (bcrypt).
// Сессия: случайный токен, в БД хранится только его sha256.
// Проверка сессии: поиск по хешу и сравнение expires_at с текущим временем.
type AuthService struct {
	adminRepo   AdminRepositoryInterface
	sessionRepo SessionRepositoryInterface
	hasher      PasswordVerifier
	ttl         time.Duration
	log         *utils.Logger
	now         func() time.Time
}

// NewAuthService создает новый экземпляр AuthService
func NewAuthService(adminRepo AdminRepositoryInterface, sessionRepo SessionRepositoryInterface, hasher PasswordVerifier, ttl time.Duration) *AuthService {
	if hasher == nil {
		hasher = crypto.NewPasswordHasher(0)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		adminRepo:   adminRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		ttl:         ttl,
		log:         utils.L().WithComponent("auth_service"),
		now:         time.Now,
	}
}

// Login проверяет учётные данные и открывает сессию.
// Неизвестный email, неактивный админ и неверный пароль неразличимы для клиента.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if utils.ValidateEmail(email) != nil || password == "" {
		return nil, ErrInvalidCredentials
	}

	admin, err := s.adminRepo.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			s.log.Warn("login for unknown admin", utils.AdminEmail(email))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.hasher.Verify(password, admin.PasswordHash); err != nil {
		s.log.Warn("login with wrong password", utils.AdminEmail(email))
		return nil, ErrInvalidCredentials
	}

	token, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &models.Session{
		TokenHash: crypto.HashToken(token),
		AdminID:   admin.ID,
		Email:     admin.Email,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.adminRepo.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		s.log.Warn("update last_login failed", utils.AdminEmail(email), utils.Err(err))
	} else {
		admin.LastLogin = &now
	}

	s.log.Info("admin logged in", utils.AdminEmail(email))
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, Admin: admin}, nil
}

// ValidateSession возвращает сессию по токену.
// Истекшая сессия удаляется и даёт ErrSessionExpired.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionNotFound
	}

	hash := crypto.HashToken(token)
	session, err := s.sessionRepo.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.Expired(s.now()) {
		if err := s.sessionRepo.Delete(ctx, hash); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			s.log.Warn("delete expired session failed", utils.Err(err))
		}
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Logout закрывает сессию; повторный выход не ошибка
func (s *AuthService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	err := s.sessionRepo.Delete(ctx, crypto.HashToken(token))
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	return nil
}

// CleanupExpired удаляет истекшие сессии (cron задача)
func (s *AuthService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired sessions removed", utils.Int64("count", n))
	}
	return n, nil
}
