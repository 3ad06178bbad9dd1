package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// math.go - математические утилиты для статистики сигналов
//
// Назначение:
// Округление денежных величин и безопасные арифметические операции,
// используемые агрегатором статистики.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - Round2: округление до 2 знаков (половина от нуля)
// - RoundTo: округление до произвольного числа знаков
// - RoundDecimal2: округление decimal-сумм агрегатора
// - Percentage: доля без деления на ноль
// - MaxInt: максимум для счётчиков серий

// Round2 округляет значение до 2 знаков после запятой.
//
// Округление выполняется в десятичной арифметике, поэтому
// значения вида 1.005 округляются до 1.01, а не до 1.00
// как при наивном math.Round(x*100)/100.
//
// Половина округляется от нуля: Round2(-0.125) = -0.13.
//
// Примеры:
//   - Round2(1.005) = 1.01
//   - Round2(33.333) = 33.33
//   - Round2(-2.675) = -2.68
func Round2(value float64) float64 {
	return RoundTo(value, 2)
}

// RoundTo округляет значение до places знаков после запятой.
//
// NaN и ±Inf возвращаются без изменений.
func RoundTo(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	f, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return f
}

// RoundDecimal2 округляет decimal до 2 знаков и возвращает float64
func RoundDecimal2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// Percentage возвращает part/total × 100 или 0 при total == 0
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// MaxInt возвращает большее из двух целых
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
