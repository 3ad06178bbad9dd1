package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signalhub/internal/api/handlers"
	"signalhub/internal/api/middleware"
	"signalhub/internal/service"
	"signalhub/internal/websocket"
	"signalhub/pkg/ratelimit"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	SignalService service.SignalServiceInterface
	StatsService  service.StatsServiceInterface
	AuthService   service.AuthServiceInterface
	Hub           *websocket.Hub

	// WebhookSecret включает проверку подписи алертов TradingView
	WebhookSecret string
	// EAAPIKey включает проверку X-API-Key на маршрутах советника
	EAAPIKey string
	// CORSOrigins дополнительные разрешенные origin дашборда
	CORSOrigins []string
	// SecureCookie ставит флаг Secure на cookie сессии
	SecureCookie bool

	WebhookLimiter *ratelimit.KeyedLimiter
	LoginLimiter   *ratelimit.KeyedLimiter

	HealthChecks map[string]handlers.Pinger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /signals/
//	│   ├── POST /webhook - алерт TradingView (подпись, rate limit)
//	│   ├── GET /stats - статистика (ETag, 304)
//	│   ├── GET / - список для советника (X-API-Key)
//	│   ├── POST / - отчет советника об исполнении (X-API-Key)
//	│   ├── GET /{id} - один сигнал (X-API-Key)
//	│   ├── POST /manual - ручной сигнал (сессия)
//	│   ├── PUT /{id} - правка (сессия)
//	│   └── DELETE /{id} - удаление (сессия)
//	└── /auth/
//	    ├── POST /login - вход (rate limit)
//	    ├── POST /logout - выход
//	    └── GET /session - текущая сессия (сессия)
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics - prometheus
// /health - проверка БД и Redis
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. Metrics (для всех маршрутов)
// 4. CORS (для всех маршрутов)
// 5. APIKey / RequireSession / RateLimit (для групп маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.Metrics)
	router.Use(middleware.CORS(deps.CORSOrigins))

	// Preflight: mux вызывает middleware только для совпавших маршрутов
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api := router.PathPrefix("/api/v1").Subrouter()

	var requireSession func(http.Handler) http.Handler
	if deps.AuthService != nil {
		requireSession = middleware.RequireSession(deps.AuthService)
	}

	// Signal routes. Статические пути регистрируются до /signals/{id}
	if deps.SignalService != nil {
		signalHandler := handlers.NewSignalHandler(deps.SignalService, deps.WebhookSecret)

		webhook := api.Path("/signals/webhook").Subrouter()
		if deps.WebhookLimiter != nil {
			webhook.Use(middleware.RateLimit(deps.WebhookLimiter))
		}
		webhook.Methods(http.MethodPost).HandlerFunc(signalHandler.Webhook)

		if deps.StatsService != nil {
			statsHandler := handlers.NewStatsHandler(deps.StatsService)
			api.HandleFunc("/signals/stats", statsHandler.GetStats).Methods(http.MethodGet)
		}

		if requireSession != nil {
			admin := api.NewRoute().Subrouter()
			admin.Use(requireSession)
			admin.HandleFunc("/signals/manual", signalHandler.CreateManual).Methods(http.MethodPost)
			admin.HandleFunc("/signals/{id}", signalHandler.UpdateSignal).Methods(http.MethodPut)
			admin.HandleFunc("/signals/{id}", signalHandler.DeleteSignal).Methods(http.MethodDelete)
		}

		ea := api.NewRoute().Subrouter()
		ea.Use(middleware.APIKey(deps.EAAPIKey))
		ea.HandleFunc("/signals", signalHandler.ListSignals).Methods(http.MethodGet)
		ea.HandleFunc("/signals", signalHandler.ProcessSignal).Methods(http.MethodPost)
		ea.HandleFunc("/signals/{id}", signalHandler.GetSignal).Methods(http.MethodGet)
	}

	// Auth routes
	if deps.AuthService != nil {
		authHandler := handlers.NewAuthHandler(deps.AuthService, deps.SecureCookie)

		login := api.Path("/auth/login").Subrouter()
		if deps.LoginLimiter != nil {
			login.Use(middleware.RateLimit(deps.LoginLimiter))
		}
		login.Methods(http.MethodPost).HandlerFunc(authHandler.Login)

		api.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
		api.Handle("/auth/session", requireSession(http.HandlerFunc(authHandler.Session))).Methods(http.MethodGet)
	}

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", deps.Hub.ServeWS).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	return router
}
