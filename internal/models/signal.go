package models

import (
	"errors"
	"time"
)

// SignalAction направление сигнала
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
)

// Valid true для BUY и SELL
func (a SignalAction) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Значения по умолчанию для новых сигналов
const (
	DefaultVolume        = 0.01
	CommentWebhook       = "TradingView Alert"
	CommentManual        = "Manual signal"
	SourceWebhook        = "webhook"
	SourceManual         = "manual"
	DefaultRecentSignals = 10
)

// ErrPnLWithoutProcessed pnl/success заданы у необработанного сигнала
var ErrPnLWithoutProcessed = errors.New("pnl and success require processed=true")

// Signal торговый сигнал TradingView, исполняемый советником MetaTrader
type Signal struct {
	ID          string       `json:"id" db:"id"`
	Symbol      string       `json:"symbol" db:"symbol"` // EURUSD, XAUUSD
	Action      SignalAction `json:"action" db:"action"`
	OrderType   string       `json:"order_type,omitempty" db:"order_type"` // MARKET, LIMIT
	EntryPrice  *float64     `json:"entry_price,omitempty" db:"entry_price"`
	ExitPrice   *float64     `json:"exit_price,omitempty" db:"exit_price"`
	StopLoss    *float64     `json:"stop_loss,omitempty" db:"stop_loss"`
	TakeProfit  *float64     `json:"take_profit,omitempty" db:"take_profit"`
	Volume      float64      `json:"volume" db:"volume"`
	Comment     string       `json:"comment,omitempty" db:"comment"`
	MagicNumber *int         `json:"magic_number,omitempty" db:"magic_number"` // фильтр советника
	PnL         *float64     `json:"pnl,omitempty" db:"pnl"`                   // только для закрытых
	Processed   bool         `json:"processed" db:"processed"`
	Success     *bool        `json:"success,omitempty" db:"success"`
	Timestamp   time.Time    `json:"timestamp" db:"timestamp"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// IsClosed true, если сделка обработана и по ней известен pnl
func (s *Signal) IsClosed() bool {
	return s.Processed && s.PnL != nil
}

// IsSuccessful true, если советник сообщил об успешном исполнении
func (s *Signal) IsSuccessful() bool {
	return s.Processed && s.Success != nil && *s.Success
}

// EffectiveTime время сигнала для сортировки; created_at, если timestamp не задан
func (s *Signal) EffectiveTime() time.Time {
	if s.Timestamp.IsZero() {
		return s.CreatedAt
	}
	return s.Timestamp
}

// CheckInvariant проверяет, что pnl и success есть только у обработанных сигналов
func (s *Signal) CheckInvariant() error {
	if !s.Processed && (s.PnL != nil || s.Success != nil) {
		return ErrPnLWithoutProcessed
	}
	return nil
}

// SignalFilter параметры выборки сигналов (GET /signals)
type SignalFilter struct {
	Unprocessed bool
	Symbol      string
	Magic       *int
	Limit       int
	Since       *time.Time
}

// Лимиты выборки
const (
	DefaultSignalLimit = 50
	MaxSignalLimit     = 500
)

// NormalizedLimit возвращает лимит в пределах [1, MaxSignalLimit]
func (f SignalFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultSignalLimit
	case f.Limit > MaxSignalLimit:
		return MaxSignalLimit
	default:
		return f.Limit
	}
}

// SignalList ответ на GET /signals
type SignalList struct {
	Signals          []Signal `json:"signals"`
	Count            int      `json:"count"`
	UnprocessedCount int      `json:"unprocessed_count"`
}

// ProcessUpdate отчёт советника об исполнении сигнала
type ProcessUpdate struct {
	Success    bool
	EntryPrice *float64
	ExitPrice  *float64
	PnL        *float64
	ClosedAt   *time.Time
}
