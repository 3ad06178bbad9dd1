package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных сигналов и учётных данных администратора.
//
// Функции:
// - ValidateSymbol / NormalizeSymbol: торговый символ (EURUSD, XAUUSD, BTCUSDT)
// - ValidateAction / NormalizeAction: направление сигнала BUY/SELL
// - ValidateVolume: объём лота (> 0)
// - ValidatePrice: необязательная цена (>= 0, конечное число)
// - ValidateEmail: формат email
// - ValidateAPIKey: ключ EA (>= 16 символов)
// - ValidatePassword: пароль администратора
//
// Возвращает error с описанием проблемы или nil

var (
	ErrInvalidSymbol   = errors.New("invalid symbol")
	ErrInvalidAction   = errors.New("action must be BUY or SELL")
	ErrInvalidVolume   = errors.New("volume must be positive")
	ErrInvalidPrice    = errors.New("price must be a non-negative finite number")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidAPIKey   = errors.New("invalid api key")
	ErrInvalidPassword = errors.New("password must be 8-72 characters")
)

const (
	minSymbolLength   = 2
	maxSymbolLength   = 30
	minAPIKeyLength   = 16
	minPasswordLength = 8
	maxPasswordLength = 72 // ограничение bcrypt
)

var (
	// Символы MetaTrader могут содержать суффикс брокера: EURUSD.m, US30_cash
	symbolRegex = regexp.MustCompile(`^[A-Za-z0-9._/\-]+$`)
	emailRegex  = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)
	apiKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
)

// ValidateSymbol проверяет формат торгового символа
func ValidateSymbol(symbol string) error {
	if len(symbol) < minSymbolLength || len(symbol) > maxSymbolLength {
		return fmt.Errorf("%w: length must be %d-%d", ErrInvalidSymbol, minSymbolLength, maxSymbolLength)
	}
	if !symbolRegex.MatchString(symbol) {
		return fmt.Errorf("%w: %q contains unsupported characters", ErrInvalidSymbol, symbol)
	}
	return nil
}

// NormalizeSymbol приводит символ к каноническому виду: верхний регистр, без "/".
//
// Примеры:
//   - "eur/usd" → "EURUSD"
//   - " xauusd " → "XAUUSD"
//   - "EURUSD.m" → "EURUSD.M"
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.ReplaceAll(s, "/", "")
}

// NormalizeAction приводит направление к верхнему регистру
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}

// ValidateAction проверяет направление сигнала (после нормализации)
func ValidateAction(action string) error {
	switch NormalizeAction(action) {
	case "BUY", "SELL":
		return nil
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidAction, action)
	}
}

// ValidateVolume проверяет объём лота
func ValidateVolume(volume float64) error {
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume <= 0 {
		return ErrInvalidVolume
	}
	return nil
}

// ValidatePrice проверяет необязательную цену; nil допустим
func ValidatePrice(price *float64) error {
	if price == nil {
		return nil
	}
	if math.IsNaN(*price) || math.IsInf(*price, 0) || *price < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// ValidateEmail проверяет формат email
func ValidateEmail(email string) error {
	if email == "" || !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateAPIKey базовая проверка ключа EA
func ValidateAPIKey(key string) error {
	if len(key) < minAPIKeyLength || !apiKeyRegex.MatchString(key) {
		return ErrInvalidAPIKey
	}
	return nil
}

// ValidatePassword проверяет длину пароля администратора
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// ============================================================
// Агрегирование ошибок
// ============================================================

// ValidationError ошибка валидации конкретного поля
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors набор ошибок валидации
type ValidationErrors []ValidationError

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку поля, если err != nil
func (v *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		v.Add(field, err.Error())
	}
}

// HasErrors возвращает true, если есть хотя бы одна ошибка
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// ErrOrNil возвращает nil для пустого набора, иначе сам набор
func (v ValidationErrors) ErrOrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// IsValidSymbol короткая проверка без текста ошибки
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// IsValidEmail короткая проверка без текста ошибки
func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}

// IsValidAPIKey короткая проверка без текста ошибки
func IsValidAPIKey(key string) bool {
	return ValidateAPIKey(key) == nil
}
