package stats

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"signalhub/internal/models"
	"signalhub/pkg/utils"
)

// aggregator.go - агрегатор статистики сигналов
//
// Назначение:
// Чистая функция над набором сигналов: кривая доходности, серии побед/поражений,
// просадка, дневные итоги и рейтинг символов. Без I/O и глобального состояния;
// часы подменяются только для поля lastUpdated.
//
// Сделкой считается сигнал с processed=true и конечным pnl. NaN и ±Inf
// (строки, записанные в БД в обход API) исключаются так же, как pnl=nil. Все расчёты серий,
// просадки и средних идут по сделкам в порядке возрастания времени.
//
// Классификация:
// - победа: pnl > 0
// - поражение: pnl < 0
// - pnl == 0 не победа и не поражение, но продлевает серию поражений
//   и обрывает серию побед

// DefaultTopSymbols размер рейтинга символов
const DefaultTopSymbols = 10

// Option настройка Aggregator
type Option func(*Aggregator)

// WithClock подменяет источник времени для lastUpdated
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithTopSymbols задаёт размер рейтинга символов
func WithTopSymbols(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.topSymbols = n
		}
	}
}

// Aggregator считает StatsSnapshot. Безопасен для конкурентного использования.
type Aggregator struct {
	now        func() time.Time
	topSymbols int
}

// NewAggregator создаёт агрегатор
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:        time.Now,
		topSymbols: DefaultTopSymbols,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// trade закрытая сделка, выделенная из сигнала
type trade struct {
	symbol string
	at     time.Time
	id     string
	pnl    decimal.Decimal
}

func (t trade) win() bool  { return t.pnl.IsPositive() }
func (t trade) loss() bool { return t.pnl.IsNegative() }

// symbolAcc накопитель по символу
type symbolAcc struct {
	trades, wins, losses int
	pnl                  decimal.Decimal
}

// Aggregate строит снимок статистики. Входной срез не изменяется.
// Пустой вход даёт нули и пустые (не nil) массивы.
func (a *Aggregator) Aggregate(signals []models.Signal) *models.StatsSnapshot {
	snap := models.EmptySnapshot(a.now().UTC())

	// Счётчики по всем сигналам
	snap.TotalSignals = len(signals)
	for i := range signals {
		if signals[i].Processed {
			snap.ProcessedSignals++
		}
		if signals[i].IsSuccessful() {
			snap.SuccessfulSignals++
		}
	}
	snap.ActiveSignals = snap.TotalSignals - snap.ProcessedSignals
	snap.SuccessRate = utils.Round2(utils.Percentage(snap.SuccessfulSignals, snap.ProcessedSignals))

	trades := closedTrades(signals)
	if len(trades) == 0 {
		return snap
	}

	var (
		total, grossWin, grossLoss decimal.Decimal
		winStreak, lossStreak      int
	)

	dailyIdx := make(map[string]int)
	var dailyPnL []decimal.Decimal
	symbols := make(map[string]*symbolAcc)

	for i, t := range trades {
		total = total.Add(t.pnl)

		switch {
		case t.win():
			snap.WinningTrades++
			grossWin = grossWin.Add(t.pnl)
		case t.loss():
			snap.LosingTrades++
			grossLoss = grossLoss.Add(t.pnl)
		}

		// Серии: единственное условие ветвления pnl > 0
		if t.win() {
			winStreak++
			lossStreak = 0
			snap.MaxWinStreak = utils.MaxInt(snap.MaxWinStreak, winStreak)
		} else {
			lossStreak++
			winStreak = 0
			snap.MaxLossStreak = utils.MaxInt(snap.MaxLossStreak, lossStreak)
		}

		date := utils.DateKey(t.at)
		pnl := utils.RoundDecimal2(t.pnl)

		snap.CumulativeData = append(snap.CumulativeData, models.CumulativePoint{
			Date:          date,
			CumulativePnL: utils.RoundDecimal2(total),
			DailyPnL:      pnl,
			Trades:        i + 1,
			WinStreak:     winStreak,
			LossStreak:    lossStreak,
		})

		// Дневные итоги
		idx, ok := dailyIdx[date]
		if !ok {
			idx = len(snap.DailyStats)
			dailyIdx[date] = idx
			snap.DailyStats = append(snap.DailyStats, models.DailyStat{Date: date})
			dailyPnL = append(dailyPnL, decimal.Zero)
		}
		dailyPnL[idx] = dailyPnL[idx].Add(t.pnl)
		day := &snap.DailyStats[idx]
		day.Trades++
		if t.win() {
			day.Wins++
		} else if t.loss() {
			day.Losses++
		}

		// Символы без имени в рейтинг не попадают
		if t.symbol == "" {
			continue
		}
		acc, ok := symbols[t.symbol]
		if !ok {
			acc = &symbolAcc{}
			symbols[t.symbol] = acc
		}
		acc.trades++
		acc.pnl = acc.pnl.Add(t.pnl)
		if t.win() {
			acc.wins++
		} else if t.loss() {
			acc.losses++
		}
	}

	snap.CurrentWinStreak = winStreak
	snap.CurrentLossStreak = lossStreak
	snap.TotalPnL = utils.RoundDecimal2(total)

	if snap.LosingTrades > 0 {
		snap.WinLossRatio = utils.Round2(float64(snap.WinningTrades) / float64(snap.LosingTrades))
	} else {
		snap.WinLossRatio = float64(snap.WinningTrades)
	}

	var avgWin, avgLoss decimal.Decimal
	if snap.WinningTrades > 0 {
		avgWin = grossWin.Div(decimal.NewFromInt(int64(snap.WinningTrades)))
	}
	if snap.LosingTrades > 0 {
		avgLoss = grossLoss.Abs().Div(decimal.NewFromInt(int64(snap.LosingTrades)))
	}
	snap.AvgWin = utils.RoundDecimal2(avgWin)
	snap.AvgLoss = utils.RoundDecimal2(avgLoss)

	// profitFactor = валовая прибыль / валовый убыток
	if avgLoss.IsPositive() && snap.LosingTrades > 0 {
		snap.ProfitFactor = utils.RoundDecimal2(grossWin.Div(grossLoss.Abs()))
	}

	snap.MaxDrawdown = maxDrawdown(snap.CumulativeData)

	for i := range snap.DailyStats {
		snap.DailyStats[i].PnL = utils.RoundDecimal2(dailyPnL[i])
	}
	sort.SliceStable(snap.DailyStats, func(i, j int) bool {
		return snap.DailyStats[i].Date < snap.DailyStats[j].Date
	})

	snap.TopSymbols = rankSymbols(symbols, a.topSymbols)

	return snap
}

// closedTrades выбирает сделки (processed и конечный pnl) и сортирует по времени.
// При равном времени порядок определяется id, чтобы результат не зависел от порядка входа.
func closedTrades(signals []models.Signal) []trade {
	trades := make([]trade, 0, len(signals))
	for i := range signals {
		s := &signals[i]
		if !s.IsClosed() || !finite(*s.PnL) {
			continue
		}
		trades = append(trades, trade{
			symbol: s.Symbol,
			at:     s.EffectiveTime(),
			id:     s.ID,
			pnl:    decimal.NewFromFloat(*s.PnL),
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].at.Equal(trades[j].at) {
			return trades[i].at.Before(trades[j].at)
		}
		return trades[i].id < trades[j].id
	})
	return trades
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// maxDrawdown наибольшее падение кривой от предыдущего пика.
// Пик стартует с нуля (начальный капитал), поэтому убыточный старт тоже просадка.
func maxDrawdown(points []models.CumulativePoint) float64 {
	peak := decimal.Zero
	maxDD := decimal.Zero
	for _, p := range points {
		cum := decimal.NewFromFloat(p.CumulativePnL)
		if cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := peak.Sub(cum); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return utils.RoundDecimal2(maxDD)
}

// rankSymbols сортирует символы по убыванию pnl (при равенстве по имени) и берёт top
func rankSymbols(symbols map[string]*symbolAcc, top int) []models.SymbolStat {
	out := make([]models.SymbolStat, 0, len(symbols))
	for name, acc := range symbols {
		out = append(out, models.SymbolStat{
			Symbol:  name,
			Trades:  acc.trades,
			PnL:     utils.RoundDecimal2(acc.pnl),
			Wins:    acc.wins,
			Losses:  acc.losses,
			WinRate: utils.Round2(utils.Percentage(acc.wins, acc.trades)),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PnL != out[j].PnL {
			return out[i].PnL > out[j].PnL
		}
		return out[i].Symbol < out[j].Symbol
	})

	if len(out) > top {
		out = out[:top]
	}
	return out
}
