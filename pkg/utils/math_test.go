package utils

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

// ============================================================
// Тесты Round2 / RoundTo
// ============================================================

func TestRound2(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected float64
	}{
		{"already rounded", 12.34, 12.34},
		{"round down", 33.333, 33.33},
		{"round up", 66.666, 66.67},
		{"half up float artefact", 1.005, 1.01},
		{"half away from zero negative", -2.675, -2.68},
		{"negative small", -0.125, -0.13},
		{"zero", 0, 0},
		{"integer", 50, 50},
		{"large", 123456.789, 123456.79},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Round2(tt.value)
			if got != tt.expected {
				t.Errorf("Round2(%v) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestRound2_Idempotent(t *testing.T) {
	values := []float64{0.1 + 0.2, 1.005, -7.777, 99.995, 1e-9, -1234.5678}
	for _, v := range values {
		once := Round2(v)
		if twice := Round2(once); twice != once {
			t.Errorf("Round2(Round2(%v)) = %v, want %v", v, twice, once)
		}
	}
}

func TestRoundTo_NonFinite(t *testing.T) {
	if !math.IsNaN(RoundTo(math.NaN(), 2)) {
		t.Error("NaN should stay NaN")
	}
	if !math.IsInf(RoundTo(math.Inf(1), 2), 1) {
		t.Error("+Inf should stay +Inf")
	}
}

func TestRoundDecimal2(t *testing.T) {
	// 0.1 + 0.2 в float64 даёт 0.30000000000000004
	sum := decimal.NewFromFloat(0.1).Add(decimal.NewFromFloat(0.2))
	if got := RoundDecimal2(sum); got != 0.3 {
		t.Errorf("RoundDecimal2(0.1+0.2) = %v, want 0.3", got)
	}
	if got := RoundDecimal2(decimal.RequireFromString("-2.675")); got != -2.68 {
		t.Errorf("RoundDecimal2(-2.675) = %v, want -2.68", got)
	}
}

// ============================================================
// Тесты Percentage / MaxInt
// ============================================================

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total int
		expected    float64
	}{
		{1, 2, 50},
		{0, 0, 0},
		{3, 3, 100},
		{1, 3, 100.0 / 3},
	}
	for _, tt := range tests {
		if got := Percentage(tt.part, tt.total); !floatEquals(got, tt.expected) {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.part, tt.total, got, tt.expected)
		}
	}
}

func TestMaxInt(t *testing.T) {
	if MaxInt(3, 7) != 7 || MaxInt(7, 3) != 7 {
		t.Error("MaxInt should return the larger value")
	}
}

// ============================================================
// Бенчмарки
// ============================================================

func BenchmarkRound2(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Round2(12345.6789)
	}
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
