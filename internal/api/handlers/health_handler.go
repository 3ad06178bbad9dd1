package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger проверка доступности зависимости (*sql.DB, redis)
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc адаптер функции к Pinger
type PingerFunc func(ctx context.Context) error

// PingContext вызывает f(ctx)
func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthHandler GET /health: проверяет зависимости с таймаутом
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// HealthResponse ответ /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler создает HealthHandler; nil проверки пропускаются
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	h := &HealthHandler{checks: make(map[string]Pinger), timeout: 2 * time.Second}
	for name, p := range checks {
		if p != nil {
			h.checks[name] = p
		}
	}
	return h
}

// Health отвечает 200 {"status":"ok"} или 503 {"status":"degraded"} с причиной по каждой проверке
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	respondWithJSON(w, status, resp)
}
