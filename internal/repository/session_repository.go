package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"signalhub/internal/models"
)

// Ошибки репозитория сессий
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository - работа с таблицей admin_sessions.
// Токен в БД не хранится, только его sha256.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository создает новый экземпляр репозитория
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create сохраняет сессию
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_sessions (token_hash, admin_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		s.TokenHash, s.AdminID, s.ExpiresAt, s.CreatedAt,
	)
	return err
}

// GetByTokenHash возвращает сессию вместе с email администратора.
// Сессии неактивных администраторов не находятся.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT s.token_hash, s.admin_id, a.email, s.expires_at, s.created_at
		FROM admin_sessions s
		JOIN admin_users a ON a.id = s.admin_id
		WHERE s.token_hash = $1 AND a.is_active = TRUE`

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&s.TokenHash,
		&s.AdminID,
		&s.Email,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// Delete удаляет сессию
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteExpired удаляет истекшие к моменту now сессии
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
