package websocket

import (
	"time"

	"signalhub/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeStatsUpdate - пересчитанная статистика.
	// Отправляется cron задачей, только если ETag снимка изменился
	MessageTypeStatsUpdate MessageType = "statsUpdate"

	// MessageTypeSignalCreated - новый сигнал (webhook TradingView или ручной)
	MessageTypeSignalCreated MessageType = "signalCreated"

	// MessageTypeSignalUpdated - сигнал обработан EA или изменен администратором
	MessageTypeSignalUpdated MessageType = "signalUpdated"

	// MessageTypeSignalDeleted - сигнал удален
	MessageTypeSignalDeleted MessageType = "signalDeleted"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatsUpdateMessage - сообщение со снимком статистики.
// Data сериализуется в том же виде, что и ответ GET /signals/stats
type StatsUpdateMessage struct {
	BaseMessage
	Data *models.StatsSnapshot `json:"data"`
}

// SignalMessage - сообщение о создании или изменении сигнала
type SignalMessage struct {
	BaseMessage
	Data *models.Signal `json:"data"`
}

// SignalDeletedMessage - сообщение об удалении сигнала, несет только id
type SignalDeletedMessage struct {
	BaseMessage
	ID string `json:"id"`
}

// ============ Фабричные функции для создания сообщений ============

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().UTC()}
}

// NewStatsUpdateMessage создает сообщение обновления статистики
func NewStatsUpdateMessage(snapshot *models.StatsSnapshot) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: newBase(MessageTypeStatsUpdate),
		Data:        snapshot,
	}
}

// NewSignalCreatedMessage создает сообщение о новом сигнале
func NewSignalCreatedMessage(s *models.Signal) *SignalMessage {
	return &SignalMessage{
		BaseMessage: newBase(MessageTypeSignalCreated),
		Data:        s,
	}
}

// NewSignalUpdatedMessage создает сообщение об изменении сигнала
func NewSignalUpdatedMessage(s *models.Signal) *SignalMessage {
	return &SignalMessage{
		BaseMessage: newBase(MessageTypeSignalUpdated),
		Data:        s,
	}
}

// NewSignalDeletedMessage создает сообщение об удалении сигнала
func NewSignalDeletedMessage(id string) *SignalDeletedMessage {
	return &SignalDeletedMessage{
		BaseMessage: newBase(MessageTypeSignalDeleted),
		ID:          id,
	}
}
