package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// WeakETag возвращает слабый ETag W/"<sha256 hex>" для тела ответа
func WeakETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}

// ETagMatches проверяет заголовок If-None-Match по слабому сравнению.
// Поддерживаются "*" и список через запятую.
func ETagMatches(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" || etag == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
