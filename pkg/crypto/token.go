package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// token.go - токены сессий и подписи webhook
//
// Функции:
// - GenerateToken: случайный токен сессии (base64url)
// - HashToken: SHA-256 токена для хранения в БД (сам токен не сохраняется)
// - SignPayload / VerifySignature: HMAC-SHA256 тела webhook
// - ConstantTimeEqual: сравнение секретов без утечки по времени

// DefaultTokenBytes длина случайной части токена сессии
const DefaultTokenBytes = 32

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingSignature = errors.New("missing webhook signature")
)

// GenerateToken возвращает n случайных байт в base64url без паддинга
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken возвращает hex(SHA-256(token))
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SignPayload возвращает hex(HMAC-SHA256(secret, payload))
func SignPayload(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверяет подпись тела запроса.
// Допускается префикс "sha256=" (формат GitHub/Stripe-подобных webhook).
func VerifySignature(secret, payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// ConstantTimeEqual сравнивает строки за время, не зависящее от позиции расхождения
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
