package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"signalhub/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultServer адрес signalhub по умолчанию
const DefaultServer = "http://localhost:8080"

// Client HTTP клиент API signalhub
type Client struct {
	http *resty.Client
}

// apiError тело ошибки API: {"error": "...", "details": ...}
type apiError struct {
	Message string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// APIError ошибка, которую вернул сервер
type APIError struct {
	Status  int
	Message string
	Details interface{}
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("server returned %d: %s (%v)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// SignalQuery фильтр списка сигналов
type SignalQuery struct {
	Unprocessed bool
	Symbol      string
	Magic       *int
	Limit       int
}

// SignalListResult ответ GET /api/v1/signals
type SignalListResult struct {
	models.SignalList
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewClient создает клиента. apiKey передается в X-API-Key, если не пуст.
func NewClient(server, apiKey string, timeout time.Duration) *Client {
	if server == "" {
		server = DefaultServer
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(server, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetJSONMarshaler(json.Marshal)
	client.SetJSONUnmarshaler(json.Unmarshal)
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}

	return &Client{http: client}
}

// GetStats запрашивает GET /api/v1/signals/stats; period <= 0 - период сервера по умолчанию
func (c *Client) GetStats(ctx context.Context, period int) (*models.StatsSnapshot, error) {
	var snapshot models.StatsSnapshot

	req := c.http.R().SetContext(ctx).SetResult(&snapshot).SetError(&apiError{})
	if period > 0 {
		req.SetQueryParam("period", strconv.Itoa(period))
	}

	resp, err := req.Get("/api/v1/signals/stats")
	if err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	if resp.IsError() {
		return nil, toAPIError(resp)
	}
	return &snapshot, nil
}

// ListSignals запрашивает GET /api/v1/signals
func (c *Client) ListSignals(ctx context.Context, q SignalQuery) (*SignalListResult, error) {
	var result SignalListResult

	params := map[string]string{}
	if q.Unprocessed {
		params["unprocessed"] = "true"
	}
	if q.Symbol != "" {
		params["symbol"] = q.Symbol
	}
	if q.Magic != nil {
		params["magic"] = strconv.Itoa(*q.Magic)
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		SetError(&apiError{}).
		Get("/api/v1/signals")
	if err != nil {
		return nil, fmt.Errorf("request signals: %w", err)
	}
	if resp.IsError() {
		return nil, toAPIError(resp)
	}
	if result.Signals == nil {
		result.Signals = []models.Signal{}
	}
	return &result, nil
}

func toAPIError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode(), Message: resp.Status()}
	if body, ok := resp.Error().(*apiError); ok && body.Message != "" {
		e.Message = body.Message
		e.Details = body.Details
	}
	return e
}
