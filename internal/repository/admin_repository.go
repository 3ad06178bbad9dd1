package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"signalhub/internal/models"
)

// Ошибки репозитория администраторов
var (
	ErrAdminNotFound = errors.New("admin not found")
	ErrAdminExists   = errors.New("admin with this email already exists")
)

const adminColumns = `id, email, name, password_hash, is_active, last_login, created_at, updated_at`

// AdminRepository - работа с таблицей admin_users
type AdminRepository struct {
	db *sql.DB
}

// NewAdminRepository создает новый экземпляр репозитория
func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func scanAdmin(row rowScanner) (*models.AdminUser, error) {
	a := &models.AdminUser{}
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.PasswordHash,
		&a.IsActive,
		&a.LastLogin,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create добавляет администратора; email хранится в нижнем регистре
func (r *AdminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	query := `
		INSERT INTO admin_users (email, name, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	admin.Email = normalizeEmail(admin.Email)
	admin.CreatedAt = time.Now().UTC()
	admin.UpdatedAt = admin.CreatedAt

	err := r.db.QueryRowContext(ctx, query,
		admin.Email,
		admin.Name,
		admin.PasswordHash,
		admin.IsActive,
		admin.CreatedAt,
		admin.UpdatedAt,
	).Scan(&admin.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAdminExists
		}
		return err
	}

	return nil
}

// GetActiveByEmail возвращает активного администратора по email
func (r *AdminRepository) GetActiveByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE email = $1 AND is_active = TRUE`

	a, err := scanAdmin(r.db.QueryRowContext(ctx, query, normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetByID возвращает администратора по ID
func (r *AdminRepository) GetByID(ctx context.Context, id int) (*models.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1`

	a, err := scanAdmin(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return a, nil
}

// List возвращает всех администраторов
func (r *AdminRepository) List(ctx context.Context) ([]*models.AdminUser, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+adminColumns+` FROM admin_users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []*models.AdminUser
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return admins, nil
}

// IsAdmin true, если email принадлежит активному администратору
func (r *AdminRepository) IsAdmin(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM admin_users WHERE email = $1 AND is_active = TRUE)`,
		normalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateLastLogin отмечает время входа
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id int, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE admin_users SET last_login = $2, updated_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAdminNotFound
	}

	return nil
}

// UpdatePassword заменяет хеш пароля
func (r *AdminRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE admin_users SET password_hash = $2, updated_at = NOW() WHERE email = $1`,
		normalizeEmail(email), passwordHash,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAdminNotFound
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isUniqueViolation проверяет нарушение уникальности (код 23505)
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
