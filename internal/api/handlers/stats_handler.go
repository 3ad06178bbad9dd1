package handlers

import (
	"net/http"
	"strconv"

	"signalhub/internal/service"
)

// StatsHandler обрабатывает HTTP запросы статистики сигналов.
//
// Endpoints:
// - GET /api/v1/signals/stats?period=30 - снимок статистики
//
// Статистика включает:
// - Количество сигналов (всего, активных, обработанных)
// - PNL, win rate, profit factor, средние прибыль и убыток
// - Максимальную просадку и серии побед/поражений
// - Кумулятивный PNL, дневную статистику, топ символов
// - Последние сигналы за период
type StatsHandler struct {
	statsService service.StatsServiceInterface
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимостей.
func NewStatsHandler(statsService service.StatsServiceInterface) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// GetStats возвращает снимок статистики.
//
// GET /api/v1/signals/stats?period=30
//
// Query Parameters:
// - period (optional): окно recentSignals в днях, по умолчанию 30
//
// Response 200 OK (ETag, Cache-Control: max-age=0, must-revalidate):
//
//	{
//	  "totalSignals": 3, "processedSignals": 3, "successfulSignals": 1,
//	  "activeSignals": 0, "successRate": 33.33, "totalPnL": 0,
//	  "winningTrades": 1, "losingTrades": 2, "winLossRatio": 0.5,
//	  "maxWinStreak": 1, "maxLossStreak": 2, "currentWinStreak": 0, "currentLossStreak": 2,
//	  "avgWin": 50, "avgLoss": 25, "profitFactor": 1, "maxDrawdown": 50,
//	  "cumulativeData": [...], "dailyStats": [...], "topSymbols": [...],
//	  "recentSignals": [...], "lastUpdated": "2024-01-15T10:30:00Z"
//	}
//
// Response 304 Not Modified: If-None-Match совпал с текущим ETag
//
// Response 500 Internal Server Error:
//
//	{"error": "Failed to fetch statistics", "details": "..."}
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.statsService == nil {
		respondWithError(w, http.StatusInternalServerError, "stats service not initialized", nil)
		return
	}

	period := 0
	if v := r.URL.Query().Get("period"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid period", "period must be a number of days")
			return
		}
		period = p
	}

	res, err := h.statsService.GetStats(r.Context(), period)
	if err != nil {
		respondWithServiceError(w, r, "Failed to fetch statistics", err)
		return
	}

	if writeNotModified(w, r, res.ETag) {
		return
	}
	respondWithJSON(w, http.StatusOK, res.Snapshot)
}
