package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/internal/stats"
	"signalhub/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Параметры по умолчанию
const (
	DefaultStatsPeriodDays = 30
	MaxStatsPeriodDays     = 3650
	statsCacheKey          = "signalhub:stats:snapshot"
)

// StatsResult снимок статистики с его слабым ETag
type StatsResult struct {
	Snapshot *models.StatsSnapshot
	ETag     string
}

// StatsOptions настройки StatsService
type StatsOptions struct {
	DefaultPeriodDays int
	RecentLimit       int
	CacheTTL          time.Duration
}

// StatsService предоставляет статистику по сигналам.
//
// Функции:
// - GetStats: снимок агрегатора + последние сигналы за период + ETag
// - Refresh: пересчёт и statsUpdate через WebSocket, если ETag изменился
// - Invalidate: сброс кеша после изменения сигналов
//
// Снимок агрегатора не зависит от периода и кешируется целиком (redis, опционально);
// recentSignals догружаются на каждый запрос.
type StatsService struct {
	signalRepo SignalRepositoryInterface
	aggregator *stats.Aggregator
	cache      StatsCache
	wsHub      StatsBroadcaster
	opts       StatsOptions
	log        *utils.Logger
	now        func() time.Time

	mu       sync.Mutex
	lastETag string
}

// NewStatsService создает новый экземпляр StatsService
func NewStatsService(signalRepo SignalRepositoryInterface, aggregator *stats.Aggregator, opts StatsOptions) *StatsService {
	if aggregator == nil {
		aggregator = stats.NewAggregator()
	}
	if opts.DefaultPeriodDays <= 0 {
		opts.DefaultPeriodDays = DefaultStatsPeriodDays
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = models.DefaultRecentSignals
	}
	return &StatsService{
		signalRepo: signalRepo,
		aggregator: aggregator,
		opts:       opts,
		log:        utils.L().WithComponent("stats_service"),
		now:        time.Now,
	}
}

// SetCache подключает кеш снимка статистики
func (s *StatsService) SetCache(cache StatsCache) {
	s.cache = cache
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast статистики.
//
// Вызывается после инициализации Hub в main.go:
//
//	statsService := service.NewStatsService(signalRepo, aggregator, opts)
//	statsService.SetWebSocketHub(wsHub)
func (s *StatsService) SetWebSocketHub(hub StatsBroadcaster) {
	s.wsHub = hub
}

// GetStats возвращает статистику. periodDays <= 0 означает период по умолчанию;
// период влияет только на recentSignals.
func (s *StatsService) GetStats(ctx context.Context, periodDays int) (*StatsResult, error) {
	base, err := s.baseSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.withRecent(ctx, base, s.normalizePeriod(periodDays))
}

// Refresh пересчитывает статистику без кеша и рассылает statsUpdate,
// если ETag изменился с прошлой рассылки.
func (s *StatsService) Refresh(ctx context.Context) (*StatsResult, error) {
	s.Invalidate(ctx)

	result, err := s.GetStats(ctx, s.opts.DefaultPeriodDays)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := result.ETag != s.lastETag
	s.lastETag = result.ETag
	s.mu.Unlock()

	if changed && s.wsHub != nil {
		s.wsHub.BroadcastStatsUpdate(result.Snapshot)
		s.log.Debug("stats update broadcast", utils.String("etag", result.ETag))
	}
	return result, nil
}

// Invalidate сбрасывает кеш; ошибки кеша только логируются
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.log.Warn("stats cache invalidate failed", utils.Err(err))
	}
}

func (s *StatsService) normalizePeriod(days int) int {
	switch {
	case days <= 0:
		return s.opts.DefaultPeriodDays
	case days > MaxStatsPeriodDays:
		return MaxStatsPeriodDays
	default:
		return days
	}
}

// baseSnapshot снимок агрегатора из кеша или из БД
func (s *StatsService) baseSnapshot(ctx context.Context) (*models.StatsSnapshot, error) {
	if snap := s.cachedSnapshot(ctx); snap != nil {
		return snap, nil
	}

	start := time.Now()
	signals, err := s.signalRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	snap := s.aggregator.Aggregate(signals)
	metrics.RecordStatsCompute(time.Since(start), snap.TotalPnL)

	s.storeSnapshot(ctx, snap)
	return snap, nil
}

func (s *StatsService) cachedSnapshot(ctx context.Context) *models.StatsSnapshot {
	if s.cache == nil {
		return nil
	}

	data, found, err := s.cache.Get(ctx, statsCacheKey)
	if err != nil {
		metrics.RecordCacheLookup("error")
		s.log.Warn("stats cache read failed", utils.Err(err))
		return nil
	}
	if !found {
		metrics.RecordCacheLookup("miss")
		return nil
	}

	var snap models.StatsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		metrics.RecordCacheLookup("error")
		s.log.Warn("stats cache entry corrupted", utils.Err(err))
		return nil
	}
	metrics.RecordCacheLookup("hit")
	return &snap
}

func (s *StatsService) storeSnapshot(ctx context.Context, snap *models.StatsSnapshot) {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Warn("stats snapshot marshal failed", utils.Err(err))
		return
	}
	if err := s.cache.Set(ctx, statsCacheKey, data, s.opts.CacheTTL); err != nil {
		s.log.Warn("stats cache write failed", utils.Err(err))
	}
}

// withRecent копирует снимок, добавляет последние сигналы и считает ETag
func (s *StatsService) withRecent(ctx context.Context, base *models.StatsSnapshot, periodDays int) (*StatsResult, error) {
	since := s.now().UTC().AddDate(0, 0, -periodDays)
	recent, err := s.signalRepo.GetRecent(ctx, since, s.opts.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent signals: %w", err)
	}
	if recent == nil {
		recent = []models.Signal{}
	}

	snap := *base
	snap.RecentSignals = recent

	etag, err := SnapshotETag(&snap)
	if err != nil {
		return nil, err
	}
	return &StatsResult{Snapshot: &snap, ETag: etag}, nil
}

// SnapshotETag слабый ETag снимка. lastUpdated не учитывается,
// поэтому ETag меняется только вместе с данными.
func SnapshotETag(snap *models.StatsSnapshot) (string, error) {
	c := *snap
	c.LastUpdated = time.Time{}
	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return utils.WeakETag(data), nil
}
