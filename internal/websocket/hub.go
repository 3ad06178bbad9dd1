package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// broadcastBufferSize - емкость очереди broadcast; при переполнении сообщения отбрасываются
const broadcastBufferSize = 256

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Рассылка событий дашборду в реальном времени без polling.
//
// Функции:
// - Регистрация и отмена регистрации клиентов
// - Broadcast сообщений всем активным клиентам
// - Отключение медленных клиентов (переполненный буфер отправки)
// - Неблокирующая отправка: при переполнении очереди сообщение отбрасывается
// - Остановка по Stop() с закрытием всех клиентов
//
// Типы сообщений:
// - statsUpdate: пересчитанная статистика
// - signalCreated / signalUpdated / signalDeleted: изменения сигналов
//
// Использование:
// 1. hub := NewHub()
// 2. go hub.Run()
// 3. hub.BroadcastSignalCreated(signal)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	dropped atomic.Int64
	origins *OriginChecker
	log     *utils.Logger
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		origins:    NewOriginChecker(nil),
		log:        utils.L().WithComponent("ws_hub"),
	}
}

// SetAllowedOrigins задает список разрешенных Origin для upgrade.
// Пустой список или "*" разрешает все.
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.origins = NewOriginChecker(origins)
}

// Run запускает главный цикл Hub до вызова Stop.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.UpdateWSClients(n)
			h.log.Debug("client connected", utils.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.UpdateWSClients(n)
			h.log.Debug("client disconnected", utils.Int("clients", n))

		case message := <-h.broadcast:
			// Копируем список под коротким RLock, отправляем без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				n := len(h.clients)
				h.mu.Unlock()
				metrics.UpdateWSClients(n)
				h.log.Warn("slow clients removed", utils.Int("removed", len(toRemove)), utils.Int("clients", n))
			}
		}
	}
}

// Stop останавливает Run и закрывает всех клиентов. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	metrics.UpdateWSClients(0)
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("marshal broadcast message", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	msg := make([]byte, len(data))
	copy(msg, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msg)
}

// BroadcastRaw ставит в очередь уже сериализованное сообщение.
// Не блокирует: при полной очереди или после Stop сообщение отбрасывается.
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case <-h.done:
		h.drop()
		return
	default:
	}

	select {
	case h.broadcast <- data:
	default:
		h.drop()
	}
}

func (h *Hub) drop() {
	h.dropped.Add(1)
	metrics.RecordWSDropped()
}

// BroadcastStatsUpdate отправляет снимок статистики
func (h *Hub) BroadcastStatsUpdate(snapshot *models.StatsSnapshot) {
	h.Broadcast(NewStatsUpdateMessage(snapshot))
}

// BroadcastSignalCreated отправляет новый сигнал
func (h *Hub) BroadcastSignalCreated(s *models.Signal) {
	h.Broadcast(NewSignalCreatedMessage(s))
}

// BroadcastSignalUpdated отправляет измененный сигнал
func (h *Hub) BroadcastSignalUpdated(s *models.Signal) {
	h.Broadcast(NewSignalUpdatedMessage(s))
}

// BroadcastSignalDeleted отправляет id удаленного сигнала
func (h *Hub) BroadcastSignalDeleted(id string) {
	h.Broadcast(NewSignalDeletedMessage(id))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число отброшенных сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
