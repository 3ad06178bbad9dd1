package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"signalhub/internal/models"
	"signalhub/internal/service"
	"signalhub/pkg/crypto"
	"signalhub/pkg/utils"
)

const testSignalID = "6f1c2a9e-2b7d-4c1e-9a55-0d3e8b7f4a21"

var handlerNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestSignalHandler(secret string) (*SignalHandler, *MockSignalService) {
	svc := NewMockSignalService()
	h := NewSignalHandler(svc, secret)
	h.now = func() time.Time { return handlerNow }
	return h, svc
}

func withID(r *http.Request, id string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"id": id})
}

// ============ Webhook Tests ============

func TestSignalHandler_Webhook(t *testing.T) {
	h, svc := newTestSignalHandler("")

	body := `{"symbol":"EURUSD","action":"BUY","price":1.0845,"volume":0.1,"comment":"breakout"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/signals/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Webhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp WebhookResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SignalID != testSignalID || resp.Message != "Signal received and stored" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !resp.Timestamp.Equal(handlerNow) {
		t.Errorf("timestamp = %v", resp.Timestamp)
	}
	if svc.lastWebhook == nil || *svc.lastWebhook.Price != 1.0845 || svc.lastWebhook.Comment != "breakout" {
		t.Errorf("request not passed to service: %+v", svc.lastWebhook)
	}
}

func TestSignalHandler_Webhook_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		svcErr  error
		wantErr string
	}{
		{"empty body", "", nil, "Invalid webhook data"},
		{"broken json", "{symbol", nil, "Invalid webhook data"},
		{"validation", `{"symbol":"","action":"HOLD"}`, utils.ValidationErrors{{Field: "action", Message: "action must be BUY or SELL"}}, "Invalid webhook data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestSignalHandler("")
			svc.err = tt.svcErr

			req := httptest.NewRequest(http.MethodPost, "/api/v1/signals/webhook", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Webhook(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Error != tt.wantErr || resp.Details == nil {
				t.Errorf("unexpected error body: %+v", resp)
			}
		})
	}
}

func TestSignalHandler_Webhook_Signature(t *testing.T) {
	const secret = "tv-secret"
	body := `{"symbol":"XAUUSD","action":"SELL"}`

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"valid hmac", crypto.SignPayload([]byte(secret), []byte(body)), "", http.StatusOK},
		{"valid hmac with prefix", "sha256=" + crypto.SignPayload([]byte(secret), []byte(body)), "", http.StatusOK},
		{"wrong hmac", crypto.SignPayload([]byte("other"), []byte(body)), "", http.StatusUnauthorized},
		{"query secret", "", "?secret=" + secret, http.StatusOK},
		{"wrong query secret", "", "?secret=nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestSignalHandler(secret)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/signals/webhook"+tt.query, strings.NewReader(body))
			if tt.header != "" {
				req.Header.Set(WebhookSignatureHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.Webhook(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK && svc.lastWebhook != nil {
				t.Error("unsigned alert must not reach the service")
			}
		})
	}
}

// ============ ListSignals Tests ============

func TestSignalHandler_ListSignals(t *testing.T) {
	h, svc := newTestSignalHandler("")
	svc.list = &models.SignalList{
		Signals:          []models.Signal{{ID: testSignalID, Symbol: "EURUSD", Action: models.ActionBuy, Timestamp: handlerNow}},
		Count:            1,
		UnprocessedCount: 1,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals?unprocessed=true&symbol=eurusd&magic=12345&limit=20", nil)
	w := httptest.NewRecorder()
	h.ListSignals(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Errorf("expected weak etag, got %q", etag)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "max-age=0, must-revalidate" {
		t.Errorf("Cache-Control = %q", cc)
	}

	f := svc.lastFilter
	if !f.Unprocessed || f.Symbol != "eurusd" || f.Magic == nil || *f.Magic != 12345 || f.Limit != 20 {
		t.Errorf("filter not parsed: %+v", f)
	}

	var resp struct {
		Signals          []models.Signal `json:"signals"`
		Count            int             `json:"count"`
		UnprocessedCount int             `json:"unprocessed_count"`
		LastUpdated      time.Time       `json:"lastUpdated"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.UnprocessedCount != 1 || len(resp.Signals) != 1 || !resp.LastUpdated.Equal(handlerNow) {
		t.Errorf("unexpected response: %+v", resp)
	}

	// Повторный запрос с тем же ETag - 304 без тела, даже если lastUpdated изменился
	h.now = func() time.Time { return handlerNow.Add(time.Minute) }
	req = httptest.NewRequest(http.MethodGet, "/api/v1/signals?unprocessed=true", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	h.ListSignals(w, req)

	if w.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Error("304 must not have a body")
	}
}

func TestSignalHandler_ListSignals_BadQuery(t *testing.T) {
	for _, q := range []string{"limit=abc", "limit=-1", "magic=x", "unprocessed=maybe", "since=yesterday"} {
		t.Run(q, func(t *testing.T) {
			h, _ := newTestSignalHandler("")
			w := httptest.NewRecorder()
			h.ListSignals(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals?"+q, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestSignalHandler_ListSignals_ServiceError(t *testing.T) {
	h, svc := newTestSignalHandler("")
	svc.err = ErrMockDatabase

	w := httptest.NewRecorder()
	h.ListSignals(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// ============ ProcessSignal Tests ============

func TestSignalHandler_ProcessSignal(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{"processed", `{"id":"` + testSignalID + `","success":true,"entryPrice":1.08,"exitPrice":1.09,"pnl":44}`, nil, http.StatusOK},
		{"empty body", ``, nil, http.StatusBadRequest},
		{"invalid id", `{"id":"nope","success":true}`, service.ErrInvalidSignalID, http.StatusBadRequest},
		{"missing success", `{"id":"` + testSignalID + `"}`, service.ErrSuccessRequired, http.StatusBadRequest},
		{"not found", `{"id":"` + testSignalID + `","success":false}`, service.ErrSignalNotFound, http.StatusNotFound},
		{"db error", `{"id":"` + testSignalID + `","success":false}`, ErrMockDatabase, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestSignalHandler("")
			svc.err = tt.svcErr

			w := httptest.NewRecorder()
			h.ProcessSignal(w, httptest.NewRequest(http.MethodPost, "/api/v1/signals", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var resp SignalResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Message != "Signal marked as processed" || resp.Signal == nil || !resp.Signal.Processed {
					t.Errorf("unexpected response: %+v", resp)
				}
				if *svc.lastProcess.ExitPrice != 1.09 || *svc.lastProcess.PnL != 44 {
					t.Errorf("camelCase fields not decoded: %+v", svc.lastProcess)
				}
			}
		})
	}
}

// ============ Admin CRUD Tests ============

func TestSignalHandler_CreateManual(t *testing.T) {
	h, svc := newTestSignalHandler("")

	body := `{"symbol":"GBPUSD","action":"SELL","entry_price":1.27,"magic_number":7}`
	w := httptest.NewRecorder()
	h.CreateManual(w, httptest.NewRequest(http.MethodPost, "/api/v1/signals/manual", strings.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if svc.lastManual == nil || *svc.lastManual.EntryPrice != 1.27 || *svc.lastManual.MagicNumber != 7 {
		t.Errorf("request not decoded: %+v", svc.lastManual)
	}
}

func TestSignalHandler_GetSignal(t *testing.T) {
	h, svc := newTestSignalHandler("")
	svc.signal = &models.Signal{ID: testSignalID, Symbol: "EURUSD"}

	w := httptest.NewRecorder()
	h.GetSignal(w, withID(httptest.NewRequest(http.MethodGet, "/api/v1/signals/"+testSignalID, nil), testSignalID))
	if w.Code != http.StatusOK || svc.lastID != testSignalID {
		t.Errorf("status = %d, id = %q", w.Code, svc.lastID)
	}
}

func TestSignalHandler_UpdateSignal(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		h, svc := newTestSignalHandler("")
		w := httptest.NewRecorder()
		req := withID(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"processed":true,"pnl":12.5}`)), testSignalID)
		h.UpdateSignal(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if svc.lastID != testSignalID || svc.lastUpdate.PnL == nil || *svc.lastUpdate.PnL != 12.5 {
			t.Errorf("unexpected call: id=%q req=%+v", svc.lastID, svc.lastUpdate)
		}
	})

	t.Run("pnl without processed", func(t *testing.T) {
		h, svc := newTestSignalHandler("")
		svc.err = service.ErrPnLRequiresProcessed
		w := httptest.NewRecorder()
		req := withID(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"processed":false,"pnl":12.5}`)), testSignalID)
		h.UpdateSignal(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestSignalHandler_DeleteSignal(t *testing.T) {
	h, svc := newTestSignalHandler("")
	w := httptest.NewRecorder()
	h.DeleteSignal(w, withID(httptest.NewRequest(http.MethodDelete, "/", nil), testSignalID))

	if w.Code != http.StatusOK || len(svc.deleted) != 1 {
		t.Errorf("status = %d, deleted = %v", w.Code, svc.deleted)
	}

	svc.err = service.ErrSignalNotFound
	w = httptest.NewRecorder()
	h.DeleteSignal(w, withID(httptest.NewRequest(http.MethodDelete, "/", nil), testSignalID))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
