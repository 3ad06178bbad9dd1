package stats

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/models"
	"signalhub/pkg/utils"
)

var (
	fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	baseTime = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
)

func newTestAggregator() *Aggregator {
	return NewAggregator(WithClock(func() time.Time { return fixedNow }))
}

func pnl(v float64) *float64 { return &v }
func ok(v bool) *bool        { return &v }

// closed сделка с pnl через offset часов от baseTime
func closed(symbol string, p float64, offset time.Duration) models.Signal {
	return models.Signal{
		ID:        fmt.Sprintf("sig-%s-%d", symbol, offset),
		Symbol:    symbol,
		Action:    models.ActionBuy,
		Volume:    0.01,
		Processed: true,
		Success:   ok(p > 0),
		PnL:       pnl(p),
		Timestamp: baseTime.Add(offset),
	}
}

func active(symbol string) models.Signal {
	return models.Signal{Symbol: symbol, Action: models.ActionSell, Volume: 0.01, Timestamp: baseTime}
}

// ============ Edge Cases ============

func TestAggregate_EmptyInput(t *testing.T) {
	snap := newTestAggregator().Aggregate(nil)

	assert.Zero(t, snap.TotalSignals)
	assert.Zero(t, snap.ProcessedSignals)
	assert.Zero(t, snap.ActiveSignals)
	assert.Zero(t, snap.SuccessRate)
	assert.Zero(t, snap.TotalPnL)
	assert.Zero(t, snap.WinLossRatio)
	assert.Zero(t, snap.ProfitFactor)
	assert.Zero(t, snap.MaxDrawdown)
	assert.NotNil(t, snap.CumulativeData)
	assert.Empty(t, snap.CumulativeData)
	assert.NotNil(t, snap.DailyStats)
	assert.Empty(t, snap.DailyStats)
	assert.NotNil(t, snap.TopSymbols)
	assert.Empty(t, snap.TopSymbols)
	assert.Equal(t, fixedNow, snap.LastUpdated)
}

func TestAggregate_OnlyActiveSignals(t *testing.T) {
	snap := newTestAggregator().Aggregate([]models.Signal{active("EURUSD"), active("GBPUSD")})

	assert.Equal(t, 2, snap.TotalSignals)
	assert.Equal(t, 2, snap.ActiveSignals)
	assert.Zero(t, snap.ProcessedSignals)
	assert.Empty(t, snap.CumulativeData)
}

func TestAggregate_ProcessedWithoutPnLCountedButNotTraded(t *testing.T) {
	s := models.Signal{Symbol: "EURUSD", Processed: true, Success: ok(true), Timestamp: baseTime}
	snap := newTestAggregator().Aggregate([]models.Signal{s, closed("EURUSD", 10, time.Hour)})

	assert.Equal(t, 2, snap.ProcessedSignals)
	assert.Equal(t, 2, snap.SuccessfulSignals)
	assert.Equal(t, 100.0, snap.SuccessRate)
	assert.Len(t, snap.CumulativeData, 1, "only records with pnl are trades")
	assert.Equal(t, 10.0, snap.TotalPnL)
}

func TestAggregate_NonFinitePnLExcluded(t *testing.T) {
	tests := []struct {
		name string
		pnl  float64
	}{
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := closed("EURUSD", 0, 0)
			bad.PnL = pnl(tt.pnl)
			signals := []models.Signal{bad, closed("EURUSD", 10, time.Hour)}

			var snap *models.StatsSnapshot
			require.NotPanics(t, func() { snap = newTestAggregator().Aggregate(signals) })

			assert.Equal(t, 2, snap.ProcessedSignals)
			assert.Len(t, snap.CumulativeData, 1, "non-finite pnl is not a trade")
			assert.Equal(t, 10.0, snap.TotalPnL)
			assert.Equal(t, 1, snap.WinningTrades)
			assert.Equal(t, 0, snap.LosingTrades)
		})
	}

	snap := newTestAggregator().Aggregate([]models.Signal{{ID: "nan", Processed: true, PnL: pnl(math.NaN())}})
	assert.Empty(t, snap.CumulativeData)
	assert.Equal(t, 0.0, snap.TotalPnL)
}

// ============ Scenarios ============

func TestAggregate_SingleWinningTrade(t *testing.T) {
	in := []models.Signal{{
		ID:        "1",
		Symbol:    "EURUSD",
		Action:    models.ActionBuy,
		Processed: true,
		PnL:       pnl(100),
		Timestamp: baseTime,
	}}
	snap := newTestAggregator().Aggregate(in)

	assert.Equal(t, 1, snap.WinningTrades)
	assert.Equal(t, 0, snap.LosingTrades)
	assert.Equal(t, 100.0, snap.TotalPnL)
	assert.Equal(t, 1, snap.MaxWinStreak)
	assert.Equal(t, 0.0, snap.MaxDrawdown)
	assert.Equal(t, 1.0, snap.WinLossRatio, "no losses: ratio equals wins")
	require.Len(t, snap.TopSymbols, 1)
	assert.Equal(t, models.SymbolStat{
		Symbol: "EURUSD", Trades: 1, PnL: 100, Wins: 1, Losses: 0, WinRate: 100,
	}, snap.TopSymbols[0])
}

func TestAggregate_WinThenTwoLosses(t *testing.T) {
	in := []models.Signal{
		closed("EURUSD", -30, 3*time.Hour),
		closed("EURUSD", 50, 1*time.Hour),
		closed("EURUSD", -20, 2*time.Hour),
	}
	snap := newTestAggregator().Aggregate(in)

	require.Len(t, snap.CumulativeData, 3)
	cum := []float64{snap.CumulativeData[0].CumulativePnL, snap.CumulativeData[1].CumulativePnL, snap.CumulativeData[2].CumulativePnL}
	assert.Equal(t, []float64{50, 30, 0}, cum, "input is sorted by time before the pass")

	assert.Equal(t, 50.0, snap.MaxDrawdown)
	assert.Equal(t, 2, snap.MaxLossStreak)
	assert.Equal(t, 1, snap.MaxWinStreak)
	assert.Equal(t, 2, snap.CurrentLossStreak)
	assert.Equal(t, 0, snap.CurrentWinStreak)

	assert.Equal(t, 50.0, snap.AvgWin)
	assert.Equal(t, 25.0, snap.AvgLoss)
	assert.Equal(t, 1.0, snap.ProfitFactor)
	assert.Equal(t, 0.5, snap.WinLossRatio)

	last := snap.CumulativeData[2]
	assert.Equal(t, -30.0, last.DailyPnL)
	assert.Equal(t, 3, last.Trades)
	assert.Equal(t, 2, last.LossStreak)
	assert.Equal(t, 0, last.WinStreak)
}

func TestAggregate_ZeroPnLIsNeitherWinNorLoss(t *testing.T) {
	in := []models.Signal{
		closed("XAUUSD", 40, time.Hour),
		closed("XAUUSD", 0, 2*time.Hour),
	}
	snap := newTestAggregator().Aggregate(in)

	assert.Equal(t, 1, snap.WinningTrades)
	assert.Equal(t, 0, snap.LosingTrades)
	assert.Equal(t, 0, snap.CurrentWinStreak, "zero pnl breaks the win streak")
	assert.Equal(t, 1, snap.CurrentLossStreak, "zero pnl extends the loss streak")
	assert.Equal(t, 1, snap.MaxLossStreak)
	assert.Equal(t, 0.0, snap.AvgLoss)
	assert.Equal(t, 0.0, snap.ProfitFactor, "no losing trades: profit factor is 0")

	require.Len(t, snap.TopSymbols, 1)
	assert.Equal(t, 2, snap.TopSymbols[0].Trades)
	assert.Equal(t, 1, snap.TopSymbols[0].Wins)
	assert.Equal(t, 0, snap.TopSymbols[0].Losses)
	assert.Equal(t, 50.0, snap.TopSymbols[0].WinRate)
}

func TestAggregate_DrawdownFromStartingEquity(t *testing.T) {
	in := []models.Signal{
		closed("EURUSD", -15, time.Hour),
		closed("EURUSD", 5, 2*time.Hour),
	}
	snap := newTestAggregator().Aggregate(in)

	assert.Equal(t, 15.0, snap.MaxDrawdown)
}

func TestAggregate_DailyStatsSortedAndBucketedUTC(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	in := []models.Signal{
		closed("EURUSD", 10, 48*time.Hour),
		closed("EURUSD", -5, 0),
		closed("EURUSD", 7, time.Hour),
		// 02:00 MSK 12 января = 23:00 UTC 11 января
		{ID: "tz", Symbol: "GBPUSD", Processed: true, PnL: pnl(3), Timestamp: time.Date(2024, 1, 12, 2, 0, 0, 0, msk)},
	}
	snap := newTestAggregator().Aggregate(in)

	require.Len(t, snap.DailyStats, 3)
	assert.Equal(t, models.DailyStat{Date: "2024-01-10", PnL: 2, Trades: 2, Wins: 1, Losses: 1}, snap.DailyStats[0])
	assert.Equal(t, models.DailyStat{Date: "2024-01-11", PnL: 3, Trades: 1, Wins: 1, Losses: 0}, snap.DailyStats[1])
	assert.Equal(t, models.DailyStat{Date: "2024-01-12", PnL: 10, Trades: 1, Wins: 1, Losses: 0}, snap.DailyStats[2])
}

func TestAggregate_TopSymbolsOrderAndTruncation(t *testing.T) {
	var in []models.Signal
	for i := 0; i < 12; i++ {
		in = append(in, closed(fmt.Sprintf("SYM%02d", i), float64(i*10), time.Duration(i)*time.Hour))
	}
	// Равный pnl: порядок по имени
	in = append(in, closed("AAA", 110, 20*time.Hour))

	snap := newTestAggregator().Aggregate(in)

	require.Len(t, snap.TopSymbols, DefaultTopSymbols)
	assert.Equal(t, "AAA", snap.TopSymbols[0].Symbol)
	assert.Equal(t, "SYM11", snap.TopSymbols[1].Symbol)
	assert.Equal(t, "SYM10", snap.TopSymbols[2].Symbol)
	for i := 1; i < len(snap.TopSymbols); i++ {
		assert.GreaterOrEqual(t, snap.TopSymbols[i-1].PnL, snap.TopSymbols[i].PnL)
	}
}

func TestAggregate_EmptySymbolExcludedFromRollupOnly(t *testing.T) {
	in := []models.Signal{
		closed("", 25, time.Hour),
		closed("EURUSD", 5, 2*time.Hour),
	}
	snap := newTestAggregator().Aggregate(in)

	assert.Equal(t, 30.0, snap.TotalPnL)
	assert.Len(t, snap.CumulativeData, 2)
	require.Len(t, snap.TopSymbols, 1)
	assert.Equal(t, "EURUSD", snap.TopSymbols[0].Symbol)
}

func TestAggregate_WithTopSymbols(t *testing.T) {
	in := []models.Signal{closed("A1", 1, 0), closed("B1", 2, time.Hour), closed("C1", 3, 2*time.Hour)}
	snap := NewAggregator(WithTopSymbols(2)).Aggregate(in)

	require.Len(t, snap.TopSymbols, 2)
	assert.Equal(t, "C1", snap.TopSymbols[0].Symbol)
}

func TestAggregate_RoundingOfMonetaryFields(t *testing.T) {
	in := []models.Signal{
		closed("EURUSD", 0.1, time.Hour),
		closed("EURUSD", 0.2, 2*time.Hour),
		closed("EURUSD", -1.005, 3*time.Hour),
		closed("EURUSD", 10.0/3, 4*time.Hour),
	}
	snap := newTestAggregator().Aggregate(in)

	assert.Equal(t, 0.3, snap.CumulativeData[1].CumulativePnL, "decimal sum avoids 0.30000000000000004")
	assert.Equal(t, 2.63, snap.TotalPnL)
	assert.Equal(t, 1.21, snap.AvgWin)
	assert.Equal(t, 1.01, snap.AvgLoss)
	assert.Equal(t, 3.62, snap.ProfitFactor)
	assert.Equal(t, 75.0, snap.TopSymbols[0].WinRate)

	// dailyPnL точки кривой тоже округляется
	assert.Equal(t, -1.01, snap.CumulativeData[2].DailyPnL)
	assert.Equal(t, 3.33, snap.CumulativeData[3].DailyPnL)
}

func TestAggregate_SuccessRateUsesSuccessFlag(t *testing.T) {
	in := []models.Signal{
		{Processed: true, Success: ok(true), PnL: pnl(-5), Timestamp: baseTime},
		{Processed: true, Success: ok(false), PnL: pnl(5), Timestamp: baseTime.Add(time.Hour)},
		{Processed: true, Success: ok(false), Timestamp: baseTime},
		active("EURUSD"),
	}
	snap := newTestAggregator().Aggregate(in)

	assert.Equal(t, 3, snap.ProcessedSignals)
	assert.Equal(t, 1, snap.SuccessfulSignals)
	assert.Equal(t, 33.33, snap.SuccessRate)
	assert.Equal(t, 1, snap.WinningTrades, "win/loss is decided by pnl, not by the success flag")
	assert.Equal(t, 1, snap.LosingTrades)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	in := []models.Signal{
		closed("EURUSD", -30, 3*time.Hour),
		closed("EURUSD", 50, 1*time.Hour),
	}
	first := in[0].ID
	newTestAggregator().Aggregate(in)
	assert.Equal(t, first, in[0].ID)
}

// ============ Properties ============

func randomSignals(r *rand.Rand, n int) []models.Signal {
	symbols := []string{"EURUSD", "GBPUSD", "XAUUSD", "BTCUSDT", ""}
	out := make([]models.Signal, 0, n)
	for i := 0; i < n; i++ {
		s := models.Signal{
			ID:        fmt.Sprintf("r-%d", i),
			Symbol:    symbols[r.Intn(len(symbols))],
			Action:    models.ActionBuy,
			Timestamp: baseTime.Add(time.Duration(r.Intn(24*30)) * time.Hour),
		}
		switch r.Intn(3) {
		case 0: // активный
		case 1:
			s.Processed = true
			s.Success = ok(r.Intn(2) == 0)
		default:
			s.Processed = true
			s.Success = ok(r.Intn(2) == 0)
			s.PnL = pnl(utils.Round2((r.Float64() - 0.5) * 400))
			if r.Intn(10) == 0 {
				s.PnL = pnl(0)
			}
		}
		out = append(out, s)
	}
	return out
}

func TestAggregate_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	agg := newTestAggregator()

	for iter := 0; iter < 200; iter++ {
		in := randomSignals(r, r.Intn(60))
		snap := agg.Aggregate(in)

		assert.Equal(t, snap.TotalSignals, snap.ActiveSignals+snap.ProcessedSignals)
		assert.GreaterOrEqual(t, snap.MaxWinStreak, snap.CurrentWinStreak)
		assert.GreaterOrEqual(t, snap.MaxLossStreak, snap.CurrentLossStreak)
		assert.GreaterOrEqual(t, snap.MaxDrawdown, 0.0)
		assert.LessOrEqual(t, len(snap.TopSymbols), DefaultTopSymbols)

		for i := 1; i < len(snap.DailyStats); i++ {
			assert.Less(t, snap.DailyStats[i-1].Date, snap.DailyStats[i].Date)
		}

		for _, v := range []float64{snap.TotalPnL, snap.AvgWin, snap.AvgLoss, snap.ProfitFactor, snap.MaxDrawdown, snap.SuccessRate} {
			assert.Equal(t, utils.Round2(v), v, "monetary fields are pre-rounded")
		}

		if n := len(snap.CumulativeData); n > 0 {
			assert.Equal(t, snap.TotalPnL, snap.CumulativeData[n-1].CumulativePnL)
			assert.Equal(t, n, snap.CumulativeData[n-1].Trades)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	in := randomSignals(r, 80)

	tick := fixedNow
	agg := NewAggregator(WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	a := agg.Aggregate(in)
	b := agg.Aggregate(in)
	assert.NotEqual(t, a.LastUpdated, b.LastUpdated)

	a.LastUpdated, b.LastUpdated = time.Time{}, time.Time{}
	assert.Equal(t, a, b)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	in := randomSignals(r, 50)

	shuffled := append([]models.Signal(nil), in...)
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	agg := newTestAggregator()
	assert.Equal(t, agg.Aggregate(in), agg.Aggregate(shuffled))
}

func BenchmarkAggregate(b *testing.B) {
	in := randomSignals(rand.New(rand.NewSource(1)), 1000)
	agg := NewAggregator()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		agg.Aggregate(in)
	}
}
