package handlers

import (
	"context"
	"errors"
	"time"

	"signalhub/internal/models"
	"signalhub/internal/service"
)

// ErrMockDatabase имитирует ошибку БД
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Signal Service ============

// MockSignalService мок для SignalServiceInterface
type MockSignalService struct {
	list    *models.SignalList
	signal  *models.Signal
	err     error
	deleted []string

	lastWebhook *service.WebhookRequest
	lastManual  *service.ManualSignalRequest
	lastProcess *service.ProcessRequest
	lastUpdate  *service.UpdateSignalRequest
	lastFilter  models.SignalFilter
	lastID      string
}

func NewMockSignalService() *MockSignalService {
	return &MockSignalService{
		list: &models.SignalList{Signals: []models.Signal{}},
	}
}

func (m *MockSignalService) IngestWebhook(ctx context.Context, req *service.WebhookRequest) (*models.Signal, error) {
	m.lastWebhook = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Signal{ID: testSignalID, Symbol: req.Symbol, Action: models.SignalAction(req.Action)}, nil
}

func (m *MockSignalService) CreateManual(ctx context.Context, req *service.ManualSignalRequest) (*models.Signal, error) {
	m.lastManual = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Signal{ID: testSignalID, Symbol: req.Symbol, Action: models.SignalAction(req.Action), Comment: models.CommentManual}, nil
}

func (m *MockSignalService) ListForEA(ctx context.Context, filter models.SignalFilter) (*models.SignalList, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return m.list, nil
}

func (m *MockSignalService) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.signal, nil
}

func (m *MockSignalService) MarkProcessed(ctx context.Context, req *service.ProcessRequest) (*models.Signal, error) {
	m.lastProcess = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Signal{ID: req.ID, Processed: true, Success: req.Success, PnL: req.PnL}, nil
}

func (m *MockSignalService) UpdateSignal(ctx context.Context, id string, req *service.UpdateSignalRequest) (*models.Signal, error) {
	m.lastID = id
	m.lastUpdate = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Signal{ID: id}, nil
}

func (m *MockSignalService) DeleteSignal(ctx context.Context, id string) error {
	m.lastID = id
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// ============ Mock Stats Service ============

// MockStatsService мок для StatsServiceInterface
type MockStatsService struct {
	result     *service.StatsResult
	err        error
	lastPeriod int
}

func NewMockStatsService() *MockStatsService {
	return &MockStatsService{
		result: &service.StatsResult{
			Snapshot: models.EmptySnapshot(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
			ETag:     `W/"abc"`,
		},
	}
}

func (m *MockStatsService) GetStats(ctx context.Context, periodDays int) (*service.StatsResult, error) {
	m.lastPeriod = periodDays
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *MockStatsService) Refresh(ctx context.Context) (*service.StatsResult, error) {
	return m.GetStats(ctx, 0)
}

// ============ Mock Auth Service ============

// MockAuthService мок для AuthServiceInterface
type MockAuthService struct {
	result      *service.LoginResult
	loginErr    error
	logoutErr   error
	logoutToken string
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*service.LoginResult, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.result, nil
}

func (m *MockAuthService) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	return nil, service.ErrSessionNotFound
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	m.logoutToken = token
	return m.logoutErr
}

func (m *MockAuthService) CleanupExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

var (
	_ service.SignalServiceInterface = (*MockSignalService)(nil)
	_ service.StatsServiceInterface  = (*MockStatsService)(nil)
	_ service.AuthServiceInterface   = (*MockAuthService)(nil)
)
