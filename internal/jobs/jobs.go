package jobs

import (
	"context"
	"time"

	"signalhub/internal/service"
	"signalhub/pkg/ratelimit"
	"signalhub/pkg/utils"
)

// Имена задач (метка job в метриках)
const (
	JobSessionCleanup = "session_cleanup"
	JobStatsRefresh   = "stats_refresh"
	JobLimiterCleanup = "limiter_cleanup"
	JobSignalPurge    = "signal_purge"
)

// SessionCleaner удаление истекших сессий
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// StatsRefresher пересчет статистики с рассылкой statsUpdate
type StatsRefresher interface {
	Refresh(ctx context.Context) (*service.StatsResult, error)
}

// SignalPurger удаление старых обработанных сигналов
type SignalPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// Schedules расписания задач; пустая строка отключает задачу
type Schedules struct {
	SessionCleanup string
	StatsRefresh   string
	LimiterCleanup string
	SignalPurge    string

	// LimiterIdle - ведра rate limiter без обращений дольше этого удаляются
	LimiterIdle time.Duration
	// SignalRetention - возраст обработанных сигналов для удаления (0 - не удалять)
	SignalRetention time.Duration
}

// Deps зависимости задач; nil зависимость отключает соответствующую задачу
type Deps struct {
	Sessions SessionCleaner
	Stats    StatsRefresher
	Signals  SignalPurger
	Limiters []*ratelimit.KeyedLimiter
}

// Register регистрирует стандартные задачи signalhub
func Register(r *Runner, deps Deps, s Schedules) error {
	if deps.Sessions != nil {
		if _, err := r.Add(s.SessionCleanup, JobSessionCleanup, SessionCleanupJob(deps.Sessions)); err != nil {
			return err
		}
	}
	if deps.Stats != nil {
		if _, err := r.Add(s.StatsRefresh, JobStatsRefresh, StatsRefreshJob(deps.Stats)); err != nil {
			return err
		}
	}
	if len(deps.Limiters) > 0 {
		if _, err := r.Add(s.LimiterCleanup, JobLimiterCleanup, LimiterCleanupJob(s.LimiterIdle, deps.Limiters...)); err != nil {
			return err
		}
	}
	if deps.Signals != nil && s.SignalRetention > 0 {
		if _, err := r.Add(s.SignalPurge, JobSignalPurge, SignalPurgeJob(deps.Signals, s.SignalRetention)); err != nil {
			return err
		}
	}
	return nil
}

// SessionCleanupJob удаляет истекшие сессии администраторов
func SessionCleanupJob(c SessionCleaner) JobFunc {
	return func(ctx context.Context) error {
		_, err := c.CleanupExpired(ctx)
		return err
	}
}

// StatsRefreshJob пересчитывает статистику; рассылка только при изменении ETag
func StatsRefreshJob(s StatsRefresher) JobFunc {
	return func(ctx context.Context) error {
		_, err := s.Refresh(ctx)
		return err
	}
}

// LimiterCleanupJob удаляет неиспользуемые ведра rate limiter
func LimiterCleanupJob(idle time.Duration, limiters ...*ratelimit.KeyedLimiter) JobFunc {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return func(ctx context.Context) error {
		removed := 0
		for _, l := range limiters {
			removed += l.Cleanup(idle)
		}
		if removed > 0 {
			utils.L().Debug("rate limiter buckets removed", utils.Int("count", removed))
		}
		return nil
	}
}

// SignalPurgeJob удаляет обработанные сигналы старше retention
func SignalPurgeJob(p SignalPurger, retention time.Duration) JobFunc {
	return func(ctx context.Context) error {
		_, err := p.PurgeOlderThan(ctx, retention)
		return err
	}
}
