package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"signalhub/internal/models"
)

// Стили вывода
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1).
			MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(18)

	profitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

func pnl(v float64) string {
	s := fmt.Sprintf("%+.2f", v)
	if v < 0 {
		return lossStyle.Render(s)
	}
	return profitStyle.Render(s)
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// RenderStats форматирует снимок статистики для терминала
func RenderStats(s *models.StatsSnapshot) string {
	if s == nil {
		return mutedStyle.Render("no statistics")
	}

	summary := lipgloss.JoinVertical(lipgloss.Left,
		row("Total signals", fmt.Sprintf("%d", s.TotalSignals)),
		row("Processed", fmt.Sprintf("%d", s.ProcessedSignals)),
		row("Active", fmt.Sprintf("%d", s.ActiveSignals)),
		row("Success rate", fmt.Sprintf("%.2f%%", s.SuccessRate)),
		row("Total PnL", pnl(s.TotalPnL)),
	)

	trades := lipgloss.JoinVertical(lipgloss.Left,
		row("Wins / losses", fmt.Sprintf("%d / %d", s.WinningTrades, s.LosingTrades)),
		row("Win/loss ratio", fmt.Sprintf("%.2f", s.WinLossRatio)),
		row("Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor)),
		row("Avg win / loss", fmt.Sprintf("%s / %s", pnl(s.AvgWin), pnl(-s.AvgLoss))),
		row("Max drawdown", fmt.Sprintf("%.2f", s.MaxDrawdown)),
		row("Streaks", fmt.Sprintf("max %dW/%dL, now %dW/%dL",
			s.MaxWinStreak, s.MaxLossStreak, s.CurrentWinStreak, s.CurrentLossStreak)),
	)

	var b strings.Builder
	b.WriteString(titleStyle.Render("signalhub statistics"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(summary), " ", panelStyle.Render(trades)))
	b.WriteString("\n")

	if len(s.TopSymbols) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(mutedStyle).
			Headers("SYMBOL", "TRADES", "WINS", "LOSSES", "WIN RATE", "PNL")
		for _, sym := range s.TopSymbols {
			t.Row(sym.Symbol,
				fmt.Sprintf("%d", sym.Trades),
				fmt.Sprintf("%d", sym.Wins),
				fmt.Sprintf("%d", sym.Losses),
				fmt.Sprintf("%.1f%%", sym.WinRate),
				fmt.Sprintf("%+.2f", sym.PnL))
		}
		b.WriteString("\n")
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("updated " + s.LastUpdated.UTC().Format("2006-01-02 15:04:05 UTC")))
	b.WriteString("\n")
	return b.String()
}

// RenderSignals форматирует список сигналов таблицей
func RenderSignals(list *SignalListResult) string {
	if list == nil || len(list.Signals) == 0 {
		return mutedStyle.Render("no signals") + "\n"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "TIME", "SYMBOL", "ACTION", "VOLUME", "ENTRY", "STATUS", "PNL")

	for _, s := range list.Signals {
		status := "pending"
		if s.Processed {
			status = "processed"
			if s.Success != nil && !*s.Success {
				status = "failed"
			}
		}
		t.Row(
			shortID(s.ID),
			s.Timestamp.UTC().Format("01-02 15:04"),
			s.Symbol,
			string(s.Action),
			fmt.Sprintf("%.2f", s.Volume),
			optFloat(s.EntryPrice),
			status,
			optFloat(s.PnL),
		)
	}

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d shown, %d unprocessed", list.Count, list.UnprocessedCount)))
	b.WriteString("\n")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.5g", *v)
}
