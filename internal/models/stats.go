package models

import "time"

// StatsSnapshot агрегированная статистика по всем сигналам.
// Поля в camelCase: формат, который ожидает дашборд.
type StatsSnapshot struct {
	TotalSignals      int     `json:"totalSignals"`
	ProcessedSignals  int     `json:"processedSignals"`
	SuccessfulSignals int     `json:"successfulSignals"`
	ActiveSignals     int     `json:"activeSignals"`
	SuccessRate       float64 `json:"successRate"` // %
	TotalPnL          float64 `json:"totalPnL"`

	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinLossRatio  float64 `json:"winLossRatio"`

	MaxWinStreak      int `json:"maxWinStreak"`
	MaxLossStreak     int `json:"maxLossStreak"`
	CurrentWinStreak  int `json:"currentWinStreak"`
	CurrentLossStreak int `json:"currentLossStreak"`

	AvgWin       float64 `json:"avgWin"`
	AvgLoss      float64 `json:"avgLoss"` // модуль
	ProfitFactor float64 `json:"profitFactor"`
	MaxDrawdown  float64 `json:"maxDrawdown"` // >= 0

	CumulativeData []CumulativePoint `json:"cumulativeData"`
	DailyStats     []DailyStat       `json:"dailyStats"`
	TopSymbols     []SymbolStat      `json:"topSymbols"`
	RecentSignals  []Signal          `json:"recentSignals"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// CumulativePoint точка кривой доходности, по одной на закрытую сделку
type CumulativePoint struct {
	Date          string  `json:"date"` // YYYY-MM-DD (UTC)
	CumulativePnL float64 `json:"cumulativePnL"`
	DailyPnL      float64 `json:"dailyPnL"` // pnl этой сделки
	Trades        int     `json:"trades"`   // порядковый номер сделки
	WinStreak     int     `json:"winStreak"`
	LossStreak    int     `json:"lossStreak"`
}

// DailyStat итоги календарного дня
type DailyStat struct {
	Date   string  `json:"date"`
	PnL    float64 `json:"pnl"`
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
}

// SymbolStat результаты по символу
type SymbolStat struct {
	Symbol  string  `json:"symbol"`
	Trades  int     `json:"trades"`
	PnL     float64 `json:"pnl"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"winRate"` // %
}

// EmptySnapshot статистика для пустого набора сигналов: нули и пустые (не nil) массивы
func EmptySnapshot(now time.Time) *StatsSnapshot {
	return &StatsSnapshot{
		CumulativeData: []CumulativePoint{},
		DailyStats:     []DailyStat{},
		TopSymbols:     []SymbolStat{},
		RecentSignals:  []Signal{},
		LastUpdated:    now,
	}
}
