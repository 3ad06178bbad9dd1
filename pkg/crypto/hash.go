package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// hash.go - хеширование паролей администраторов
//
// Назначение:
// bcrypt-хеши паролей для таблицы admin_users. Хеш создаётся
// командой signalctl admin create, проверяется при POST /auth/login.

// Ошибки хеширования
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// DefaultCost стоимость bcrypt по умолчанию
const DefaultCost = 12

// MaxPasswordLength bcrypt учитывает только первые 72 байта
const MaxPasswordLength = 72

// PasswordHasher хеширует и проверяет пароли с фиксированной стоимостью
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher создаёт hasher; cost приводится к диапазону [bcrypt.MinCost, bcrypt.MaxCost]
func NewPasswordHasher(cost int) *PasswordHasher {
	switch {
	case cost <= 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost}
}

// Cost возвращает используемую стоимость
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash возвращает bcrypt-хеш пароля
func (h *PasswordHasher) Hash(password string) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify сравнивает пароль с хешем.
// Возвращает ErrPasswordMismatch при несовпадении и ErrInvalidHash при битом хеше.
func (h *PasswordHasher) Verify(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return ErrInvalidHash
	}
}

// NeedsRehash true, если хеш создан с меньшей стоимостью, чем текущая
func (h *PasswordHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

func checkPassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword хеширует пароль со стоимостью DefaultCost
func HashPassword(password string) (string, error) {
	return NewPasswordHasher(DefaultCost).Hash(password)
}

// CheckPasswordMatch удобная обёртка для условий
func CheckPasswordMatch(password, hash string) bool {
	return NewPasswordHasher(DefaultCost).Verify(password, hash) == nil
}
