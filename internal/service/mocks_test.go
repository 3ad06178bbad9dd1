package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalhub/internal/models"
	"signalhub/internal/repository"
)

// ============ Mock SignalRepository ============

type MockSignalRepository struct {
	mu        sync.Mutex
	signals   map[string]*models.Signal
	createErr error
	getErr    error
	listErr   error
	countErr  error
	updateErr error
	deleteErr error

	getAllCalls int
	lastFilter  models.SignalFilter
	lastProcess models.ProcessUpdate
	purgedUntil time.Time
}

func NewMockSignalRepository(signals ...models.Signal) *MockSignalRepository {
	m := &MockSignalRepository{signals: make(map[string]*models.Signal)}
	for i := range signals {
		s := signals[i]
		m.signals[s.ID] = &s
	}
	return m
}

func (m *MockSignalRepository) Create(ctx context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	c := *s
	m.signals[s.ID] = &c
	return nil
}

func (m *MockSignalRepository) GetByID(ctx context.Context, id string) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.signals[id]
	if !ok {
		return nil, repository.ErrSignalNotFound
	}
	c := *s
	return &c, nil
}

func (m *MockSignalRepository) sorted() []models.Signal {
	out := make([]models.Signal, 0, len(m.signals))
	for _, s := range m.signals {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (m *MockSignalRepository) List(ctx context.Context, filter models.SignalFilter) ([]models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Signal
	for _, s := range m.sorted() {
		if filter.Unprocessed && s.Processed {
			continue
		}
		if filter.Symbol != "" && s.Symbol != filter.Symbol {
			continue
		}
		if filter.Magic != nil && (s.MagicNumber == nil || *s.MagicNumber != *filter.Magic) {
			continue
		}
		out = append(out, s)
		if len(out) == filter.NormalizedLimit() {
			break
		}
	}
	return out, nil
}

func (m *MockSignalRepository) CountUnprocessed(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, s := range m.signals {
		if !s.Processed {
			n++
		}
	}
	return n, nil
}

func (m *MockSignalRepository) GetAll(ctx context.Context) ([]models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.sorted(), nil
}

func (m *MockSignalRepository) GetRecent(ctx context.Context, since time.Time, limit int) ([]models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []models.Signal
	for _, s := range m.sorted() {
		if s.Timestamp.Before(since) {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockSignalRepository) MarkProcessed(ctx context.Context, id string, upd models.ProcessUpdate) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProcess = upd
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	s, ok := m.signals[id]
	if !ok {
		return nil, repository.ErrSignalNotFound
	}
	s.Processed = true
	success := upd.Success
	s.Success = &success
	if upd.EntryPrice != nil {
		s.EntryPrice = upd.EntryPrice
	}
	if upd.ExitPrice != nil {
		s.ExitPrice = upd.ExitPrice
	}
	if upd.PnL != nil {
		s.PnL = upd.PnL
	}
	if upd.ClosedAt != nil {
		s.ClosedAt = upd.ClosedAt
	}
	c := *s
	return &c, nil
}

func (m *MockSignalRepository) Update(ctx context.Context, s *models.Signal) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if _, ok := m.signals[s.ID]; !ok {
		return nil, repository.ErrSignalNotFound
	}
	c := *s
	m.signals[s.ID] = &c
	out := c
	return &out, nil
}

func (m *MockSignalRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.signals[id]; !ok {
		return repository.ErrSignalNotFound
	}
	delete(m.signals, id)
	return nil
}

func (m *MockSignalRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.purgedUntil = before
	var n int64
	for id, s := range m.signals {
		if s.Processed && s.Timestamp.Before(before) {
			delete(m.signals, id)
			n++
		}
	}
	return n, nil
}

// ============ Mock AdminRepository ============

type MockAdminRepository struct {
	admins         map[string]*models.AdminUser
	getErr         error
	lastLoginErr   error
	lastLoginCalls int
}

func NewMockAdminRepository(admins ...*models.AdminUser) *MockAdminRepository {
	m := &MockAdminRepository{admins: make(map[string]*models.AdminUser)}
	for _, a := range admins {
		m.admins[a.Email] = a
	}
	return m
}

func (m *MockAdminRepository) GetActiveByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.admins[email]
	if !ok || !a.IsActive {
		return nil, repository.ErrAdminNotFound
	}
	c := *a
	return &c, nil
}

func (m *MockAdminRepository) IsAdmin(ctx context.Context, email string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	a, ok := m.admins[email]
	return ok && a.IsActive, nil
}

func (m *MockAdminRepository) UpdateLastLogin(ctx context.Context, id int, at time.Time) error {
	m.lastLoginCalls++
	return m.lastLoginErr
}

// ============ Mock SessionRepository ============

type MockSessionRepository struct {
	sessions  map[string]*models.Session
	createErr error
	getErr    error
	deleteErr error
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*models.Session)}
}

func (m *MockSessionRepository) Create(ctx context.Context, s *models.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	c := *s
	m.sessions[s.TokenHash] = &c
	return nil
}

func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, tokenHash string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.sessions[tokenHash]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.sessions, tokenHash)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for k, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

// ============ Mock Broadcaster ============

type MockBroadcaster struct {
	mu      sync.Mutex
	created []string
	updated []string
	deleted []string
	stats   []*models.StatsSnapshot
}

func (m *MockBroadcaster) BroadcastSignalCreated(s *models.Signal) {
	m.mu.Lock()
	m.created = append(m.created, s.ID)
	m.mu.Unlock()
}

func (m *MockBroadcaster) BroadcastSignalUpdated(s *models.Signal) {
	m.mu.Lock()
	m.updated = append(m.updated, s.ID)
	m.mu.Unlock()
}

func (m *MockBroadcaster) BroadcastSignalDeleted(id string) {
	m.mu.Lock()
	m.deleted = append(m.deleted, id)
	m.mu.Unlock()
}

func (m *MockBroadcaster) BroadcastStatsUpdate(snapshot *models.StatsSnapshot) {
	m.mu.Lock()
	m.stats = append(m.stats, snapshot)
	m.mu.Unlock()
}

// ============ Mock StatsCache ============

type MockStatsCache struct {
	data        map[string][]byte
	getErr      error
	setCalls    int
	deleteCalls int
}

func NewMockStatsCache() *MockStatsCache {
	return &MockStatsCache{data: make(map[string][]byte)}
}

func (m *MockStatsCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	d, ok := m.data[key]
	return d, ok, nil
}

func (m *MockStatsCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	m.setCalls++
	m.data[key] = data
	return nil
}

func (m *MockStatsCache) Delete(ctx context.Context, key string) error {
	m.deleteCalls++
	delete(m.data, key)
	return nil
}

// ============ Mock StatsInvalidator ============

type MockInvalidator struct {
	calls int
}

func (m *MockInvalidator) Invalidate(ctx context.Context) {
	m.calls++
}

// ============ Helpers ============

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
func strPtr(v string) *string     { return &v }
func intPtr(v int) *int           { return &v }
