package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/internal/service"
	"signalhub/pkg/crypto"
	"signalhub/pkg/utils"
)

// WebhookSignatureHeader заголовок с HMAC-SHA256 тела алерта
const WebhookSignatureHeader = "X-Webhook-Signature"

// SignalHandler обрабатывает HTTP запросы для торговых сигналов.
//
// Endpoints:
// - POST /api/v1/signals/webhook - алерт TradingView
// - GET /api/v1/signals - список для советника и дашборда (ETag, 304)
// - POST /api/v1/signals - отчет советника об исполнении
// - GET /api/v1/signals/{id} - один сигнал
// - POST /api/v1/signals/manual - ручной сигнал (сессия администратора)
// - PUT /api/v1/signals/{id} - правка сигнала (сессия администратора)
// - DELETE /api/v1/signals/{id} - удаление сигнала (сессия администратора)
type SignalHandler struct {
	signalService service.SignalServiceInterface
	webhookSecret []byte
	now           func() time.Time
}

// NewSignalHandler создает новый SignalHandler.
// Непустой webhookSecret включает проверку подписи алертов.
func NewSignalHandler(signalService service.SignalServiceInterface, webhookSecret string) *SignalHandler {
	h := &SignalHandler{
		signalService: signalService,
		now:           time.Now,
	}
	if webhookSecret != "" {
		h.webhookSecret = []byte(webhookSecret)
	}
	return h
}

// WebhookResponse ответ на принятый алерт
type WebhookResponse struct {
	Message   string    `json:"message"`
	SignalID  string    `json:"signalId"`
	Timestamp time.Time `json:"timestamp"`
}

// SignalResponse ответ с одним сигналом
type SignalResponse struct {
	Message string         `json:"message,omitempty"`
	Signal  *models.Signal `json:"signal"`
}

// SignalListResponse ответ GET /signals
type SignalListResponse struct {
	*models.SignalList
	LastUpdated time.Time `json:"lastUpdated"`
}

// Webhook принимает алерт TradingView.
//
// POST /api/v1/signals/webhook
//
// Request:
//
//	{"symbol": "EURUSD", "action": "BUY", "price": 1.0845, "volume": 0.1,
//	 "stopLoss": 1.08, "takeProfit": 1.09, "comment": "breakout", "timestamp": "2024-01-15T10:30:00Z"}
//
// Подпись: если задан TRADINGVIEW_WEBHOOK_SECRET, требуется X-Webhook-Signature = hex(HMAC-SHA256(secret, body))
// или ?secret=<secret> (TradingView не умеет добавлять заголовки).
//
// Response 200 OK:
//
//	{"message": "Signal received and stored", "signalId": "…", "timestamp": "…"}
//
// Response 400: {"error": "Invalid webhook data", "details": [...]}
// Response 401: {"error": "invalid webhook signature"}
func (h *SignalHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		metrics.RecordSignalRejected("bad_body")
		respondWithError(w, http.StatusBadRequest, "Invalid webhook data", err.Error())
		return
	}

	if err := h.verifyWebhook(r, body); err != nil {
		metrics.RecordSignalRejected("signature")
		utils.L().Warn("webhook signature rejected", utils.Err(err), utils.String("client_ip", r.RemoteAddr))
		respondWithError(w, http.StatusUnauthorized, err.Error(), nil)
		return
	}

	var req service.WebhookRequest
	if err := unmarshalBody(body, &req); err != nil {
		metrics.RecordSignalRejected("bad_json")
		respondWithError(w, http.StatusBadRequest, "Invalid webhook data", err.Error())
		return
	}

	signal, err := h.signalService.IngestWebhook(r.Context(), &req)
	if err != nil {
		var verrs utils.ValidationErrors
		if errors.As(err, &verrs) {
			metrics.RecordSignalRejected("validation")
			respondWithError(w, http.StatusBadRequest, "Invalid webhook data", verrs)
			return
		}
		respondWithServiceError(w, r, "Failed to process webhook", err)
		return
	}

	respondWithJSON(w, http.StatusOK, WebhookResponse{
		Message:   "Signal received and stored",
		SignalID:  signal.ID,
		Timestamp: h.now().UTC(),
	})
}

func (h *SignalHandler) verifyWebhook(r *http.Request, body []byte) error {
	if len(h.webhookSecret) == 0 {
		return nil
	}
	if sig := r.Header.Get(WebhookSignatureHeader); sig != "" {
		return crypto.VerifySignature(h.webhookSecret, body, sig)
	}
	if secret := r.URL.Query().Get("secret"); secret != "" {
		if crypto.ConstantTimeEqual(secret, string(h.webhookSecret)) {
			return nil
		}
		return crypto.ErrInvalidSignature
	}
	return crypto.ErrMissingSignature
}

// ListSignals возвращает сигналы для советника или дашборда.
//
// GET /api/v1/signals?unprocessed=true&symbol=EURUSD&magic=12345&limit=50
//
// Response 200 OK (ETag, Cache-Control: max-age=0, must-revalidate):
//
//	{"signals": [...], "count": 2, "unprocessed_count": 1, "lastUpdated": "…"}
//
// Response 304 Not Modified: If-None-Match совпал с текущим ETag
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSignalFilter(r)
	if err != nil {
		respondWithServiceError(w, r, "Failed to fetch signals", err)
		return
	}

	list, err := h.signalService.ListForEA(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, "Failed to fetch signals", err)
		return
	}

	// ETag по данным без lastUpdated: иначе он меняется на каждый запрос
	digest, err := json.Marshal(list)
	if err != nil {
		respondWithServiceError(w, r, "Failed to fetch signals", err)
		return
	}
	if writeNotModified(w, r, utils.WeakETag(digest)) {
		return
	}

	respondWithJSON(w, http.StatusOK, SignalListResponse{
		SignalList:  list,
		LastUpdated: h.now().UTC(),
	})
}

func parseSignalFilter(r *http.Request) (models.SignalFilter, error) {
	q := r.URL.Query()
	var filter models.SignalFilter
	var verrs utils.ValidationErrors

	if v := q.Get("unprocessed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			verrs.Add("unprocessed", "must be true or false")
		}
		filter.Unprocessed = b
	}
	filter.Symbol = strings.TrimSpace(q.Get("symbol"))

	if v := q.Get("magic"); v != "" {
		magic, err := strconv.Atoi(v)
		if err != nil {
			verrs.Add("magic", "must be an integer")
		} else {
			filter.Magic = &magic
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			verrs.Add("limit", "must be a positive integer")
		} else {
			filter.Limit = limit
		}
	}
	if v := q.Get("since"); v != "" {
		since, err := utils.ParseSignalTime(v)
		if err != nil {
			verrs.AddError("since", err)
		} else {
			filter.Since = &since
		}
	}

	return filter, verrs.ErrOrNil()
}

// ProcessSignal принимает отчет советника.
//
// POST /api/v1/signals
//
// Request:
//
//	{"id": "…", "success": true, "entryPrice": 1.0846, "exitPrice": 1.0890, "pnl": 44.0}
//
// Response 200 OK:
//
//	{"message": "Signal marked as processed", "signal": {...}}
func (h *SignalHandler) ProcessSignal(w http.ResponseWriter, r *http.Request) {
	var req service.ProcessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	signal, err := h.signalService.MarkProcessed(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, r, "Failed to update signal", err)
		return
	}

	respondWithJSON(w, http.StatusOK, SignalResponse{Message: "Signal marked as processed", Signal: signal})
}

// GetSignal возвращает сигнал по ID.
//
// GET /api/v1/signals/{id}
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	signal, err := h.signalService.GetSignal(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, "Failed to fetch signal", err)
		return
	}
	respondWithJSON(w, http.StatusOK, SignalResponse{Signal: signal})
}

// CreateManual создает сигнал из дашборда.
//
// POST /api/v1/signals/manual
//
// Response 201 Created:
//
//	{"message": "Signal created successfully", "signal": {...}}
func (h *SignalHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	var req service.ManualSignalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	signal, err := h.signalService.CreateManual(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, r, "Failed to create signal", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, SignalResponse{Message: "Signal created successfully", Signal: signal})
}

// UpdateSignal правит сигнал; переданы могут быть только изменяемые поля.
//
// PUT /api/v1/signals/{id}
//
// Response 200 OK:
//
//	{"message": "Signal updated successfully", "signal": {...}}
func (h *SignalHandler) UpdateSignal(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateSignalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	signal, err := h.signalService.UpdateSignal(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		respondWithServiceError(w, r, "Failed to update signal", err)
		return
	}

	respondWithJSON(w, http.StatusOK, SignalResponse{Message: "Signal updated successfully", Signal: signal})
}

// DeleteSignal удаляет сигнал.
//
// DELETE /api/v1/signals/{id}
//
// Response 200 OK:
//
//	{"message": "Signal deleted successfully"}
func (h *SignalHandler) DeleteSignal(w http.ResponseWriter, r *http.Request) {
	if err := h.signalService.DeleteSignal(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondWithServiceError(w, r, "Failed to delete signal", err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Signal deleted successfully"})
}
