package utils

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Вспомогательные функции для дневной агрегации статистики,
// фильтрации сигналов по периоду и разбора времени из webhook.
//
// Функции:
// - DateKey: ключ календарного дня UTC (YYYY-MM-DD)
// - GetDayStartFrom / GetDayEndFrom: границы дня в UTC
// - LastNDaysFrom: диапазон последних n дней
// - ParseSignalTime: разбор времени сигнала (RFC3339 или unix)

// DateKeyLayout формат ключа дня в dailyStats и cumulativeData
const DateKeyLayout = "2006-01-02"

// ErrInvalidTimestamp время сигнала не удалось разобрать
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// DateKey возвращает календарную дату t в UTC в формате YYYY-MM-DD
func DateKey(t time.Time) string {
	return t.UTC().Format(DateKeyLayout)
}

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEndFrom возвращает конец дня для указанного времени
func GetDayEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// ============================================================
// Диапазоны
// ============================================================

// TimeRange представляет временной диапазон
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон (границы включены)
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает продолжительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// LastNDaysFrom возвращает диапазон последних n×24 часов, заканчивающийся в now.
//
// n <= 0 трактуется как 1.
//
// Пример:
//
//	// now: 2024-01-31 12:00 UTC, n = 30
//	// Start: 2024-01-01 12:00 UTC
func LastNDaysFrom(now time.Time, n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now = now.UTC()
	return TimeRange{
		Start: now.AddDate(0, 0, -n),
		End:   now,
	}
}

// ============================================================
// Разбор времени сигнала
// ============================================================

var signalTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05", // формат TimeToString в MetaTrader
}

// ParseSignalTime разбирает время сигнала.
//
// Поддерживаются RFC3339, формат MetaTrader (2006.01.02 15:04:05),
// а также unix-время в секундах или миллисекундах ({{timenow}} в TradingView
// отдаёт ISO-строку, но пользовательские шаблоны часто подставляют unix).
// Время без зоны считается UTC.
func ParseSignalTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	for _, layout := range signalTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// FormatDuration форматирует продолжительность в человекочитаемый формат
//
// Примеры:
//   - "45s"
//   - "5m30s"
//   - "2h15m0s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Truncate(time.Second).String()
}
