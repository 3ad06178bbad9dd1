package service

import (
	"context"
	"time"

	"signalhub/internal/cache"
	"signalhub/internal/models"
	"signalhub/internal/repository"
	"signalhub/internal/websocket"
)

// SignalRepositoryInterface определяет интерфейс репозитория сигналов
type SignalRepositoryInterface interface {
	Create(ctx context.Context, s *models.Signal) error
	GetByID(ctx context.Context, id string) (*models.Signal, error)
	List(ctx context.Context, filter models.SignalFilter) ([]models.Signal, error)
	CountUnprocessed(ctx context.Context) (int, error)
	GetAll(ctx context.Context) ([]models.Signal, error)
	GetRecent(ctx context.Context, since time.Time, limit int) ([]models.Signal, error)
	MarkProcessed(ctx context.Context, id string, upd models.ProcessUpdate) (*models.Signal, error)
	Update(ctx context.Context, s *models.Signal) (*models.Signal, error)
	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// AdminRepositoryInterface определяет интерфейс репозитория администраторов
type AdminRepositoryInterface interface {
	GetActiveByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	IsAdmin(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id int, at time.Time) error
}

// SessionRepositoryInterface определяет интерфейс репозитория сессий
type SessionRepositoryInterface interface {
	Create(ctx context.Context, s *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ SignalRepositoryInterface = (*repository.SignalRepository)(nil)
var _ AdminRepositoryInterface = (*repository.AdminRepository)(nil)
var _ SessionRepositoryInterface = (*repository.SessionRepository)(nil)

// ============ Внешние зависимости сервисов ============

// SignalBroadcaster - отправка событий по сигналам через WebSocket
type SignalBroadcaster interface {
	BroadcastSignalCreated(s *models.Signal)
	BroadcastSignalUpdated(s *models.Signal)
	BroadcastSignalDeleted(id string)
}

// StatsBroadcaster - отправка обновлений статистики через WebSocket
type StatsBroadcaster interface {
	BroadcastStatsUpdate(snapshot *models.StatsSnapshot)
}

// StatsCache - кеш снимка статистики (redis). found=false при промахе.
type StatsCache interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StatsInvalidator сбрасывает закешированную статистику после изменения сигналов
type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// SignalServiceInterface определяет интерфейс сервиса сигналов
type SignalServiceInterface interface {
	IngestWebhook(ctx context.Context, req *WebhookRequest) (*models.Signal, error)
	CreateManual(ctx context.Context, req *ManualSignalRequest) (*models.Signal, error)
	ListForEA(ctx context.Context, filter models.SignalFilter) (*models.SignalList, error)
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	MarkProcessed(ctx context.Context, req *ProcessRequest) (*models.Signal, error)
	UpdateSignal(ctx context.Context, id string, req *UpdateSignalRequest) (*models.Signal, error)
	DeleteSignal(ctx context.Context, id string) error
}

// StatsServiceInterface определяет интерфейс сервиса статистики
type StatsServiceInterface interface {
	GetStats(ctx context.Context, periodDays int) (*StatsResult, error)
	Refresh(ctx context.Context) (*StatsResult, error)
}

// AuthServiceInterface определяет интерфейс сервиса авторизации
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context, token string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ SignalServiceInterface = (*SignalService)(nil)
var _ StatsServiceInterface = (*StatsService)(nil)
var _ AuthServiceInterface = (*AuthService)(nil)
var _ StatsInvalidator = (*StatsService)(nil)

var _ SignalBroadcaster = (*websocket.Hub)(nil)
var _ StatsBroadcaster = (*websocket.Hub)(nil)
var _ StatsCache = (*cache.RedisStatsCache)(nil)
