package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/internal/repository"
	"signalhub/pkg/utils"
)

// Ошибки сервиса сигналов
var (
	ErrSignalNotFound       = errors.New("signal not found")
	ErrInvalidSignalID      = errors.New("invalid signal id")
	ErrPnLRequiresProcessed = errors.New("pnl and success can only be set on processed signals")
	ErrSuccessRequired      = errors.New("success is required")
)

// WebhookRequest тело алерта TradingView
type WebhookRequest struct {
	Symbol      string   `json:"symbol"`
	Action      string   `json:"action"`
	Price       *float64 `json:"price,omitempty"`
	Volume      *float64 `json:"volume,omitempty"`
	StopLoss    *float64 `json:"stopLoss,omitempty"`
	TakeProfit  *float64 `json:"takeProfit,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
	ID          string   `json:"id,omitempty"` // id алерта TradingView, только для логов
	OrderType   string   `json:"orderType,omitempty"`
	MagicNumber *int     `json:"magicNumber,omitempty"`
}

// ManualSignalRequest ручное создание сигнала из дашборда
type ManualSignalRequest struct {
	Symbol      string   `json:"symbol"`
	Action      string   `json:"action"`
	OrderType   string   `json:"order_type,omitempty"`
	EntryPrice  *float64 `json:"entry_price,omitempty"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	TakeProfit  *float64 `json:"take_profit,omitempty"`
	Volume      *float64 `json:"volume,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	MagicNumber *int     `json:"magic_number,omitempty"`
}

// ProcessRequest отчёт советника об исполнении сигнала
type ProcessRequest struct {
	ID         string   `json:"id"`
	Success    *bool    `json:"success"`
	EntryPrice *float64 `json:"entryPrice,omitempty"`
	ExitPrice  *float64 `json:"exitPrice,omitempty"`
	PnL        *float64 `json:"pnl,omitempty"`
}

// UpdateSignalRequest правка сигнала администратором.
// nil означает "оставить как есть".
type UpdateSignalRequest struct {
	Symbol      *string  `json:"symbol,omitempty"`
	Action      *string  `json:"action,omitempty"`
	OrderType   *string  `json:"order_type,omitempty"`
	EntryPrice  *float64 `json:"entry_price,omitempty"`
	ExitPrice   *float64 `json:"exit_price,omitempty"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	TakeProfit  *float64 `json:"take_profit,omitempty"`
	Volume      *float64 `json:"volume,omitempty"`
	PnL         *float64 `json:"pnl,omitempty"`
	Comment     *string  `json:"comment,omitempty"`
	MagicNumber *int     `json:"magic_number,omitempty"`
	Processed   *bool    `json:"processed,omitempty"`
	Success     *bool    `json:"success,omitempty"`
}

// SignalService предоставляет бизнес-логику сигналов.
//
// Отвечает за:
// - приём алертов TradingView и ручных сигналов
// - выдачу сигналов советнику MetaTrader и приём отчётов об исполнении
// - правку и удаление сигналов администратором
//
// Инвариант: pnl и success есть только у обработанных (processed) сигналов.
//
// WebSocket интеграция:
// - signalCreated / signalUpdated / signalDeleted после каждого изменения
type SignalService struct {
	signalRepo SignalRepositoryInterface
	wsHub      SignalBroadcaster
	stats      StatsInvalidator
	log        *utils.Logger
	now        func() time.Time
}

// NewSignalService создает новый экземпляр SignalService
func NewSignalService(signalRepo SignalRepositoryInterface) *SignalService {
	return &SignalService{
		signalRepo: signalRepo,
		log:        utils.L().WithComponent("signal_service"),
		now:        time.Now,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для событий по сигналам
func (s *SignalService) SetWebSocketHub(hub SignalBroadcaster) {
	s.wsHub = hub
}

// SetStatsInvalidator подключает сброс кеша статистики после изменений
func (s *SignalService) SetStatsInvalidator(inv StatsInvalidator) {
	s.stats = inv
}

// IngestWebhook сохраняет алерт TradingView как новый необработанный сигнал.
//
// Значения по умолчанию:
// - volume: 0.01
// - comment: "TradingView Alert"
// - timestamp: из алерта, иначе текущее время
// - entry_price: price алерта
func (s *SignalService) IngestWebhook(ctx context.Context, req *WebhookRequest) (*models.Signal, error) {
	if req == nil {
		return nil, utils.ValidationErrors{{Field: "body", Message: "request body is required"}}
	}

	var verrs utils.ValidationErrors
	symbol, action := validateSymbolAction(&verrs, req.Symbol, req.Action)
	verrs.AddError("price", utils.ValidatePrice(req.Price))
	verrs.AddError("stopLoss", utils.ValidatePrice(req.StopLoss))
	verrs.AddError("takeProfit", utils.ValidatePrice(req.TakeProfit))
	volume := resolveVolume(&verrs, "volume", req.Volume)

	ts := s.now().UTC()
	if strings.TrimSpace(req.Timestamp) != "" {
		parsed, err := utils.ParseSignalTime(req.Timestamp)
		if err != nil {
			verrs.AddError("timestamp", err)
		} else {
			ts = parsed.UTC()
		}
	}
	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		comment = models.CommentWebhook
	}

	signal := &models.Signal{
		Symbol:      symbol,
		Action:      action,
		OrderType:   strings.ToUpper(strings.TrimSpace(req.OrderType)),
		EntryPrice:  req.Price,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		Volume:      volume,
		Comment:     comment,
		MagicNumber: req.MagicNumber,
		Timestamp:   ts,
	}

	if err := s.signalRepo.Create(ctx, signal); err != nil {
		return nil, err
	}

	metrics.RecordSignalReceived(models.SourceWebhook, string(signal.Action))
	fields := []utils.Field{
		utils.SignalID(signal.ID),
		utils.Source(models.SourceWebhook),
		utils.Symbol(signal.Symbol),
		utils.Action(string(signal.Action)),
		utils.Volume(signal.Volume),
		utils.String("alert_id", req.ID),
	}
	if signal.MagicNumber != nil {
		fields = append(fields, utils.MagicNumber(*signal.MagicNumber))
	}
	s.log.Info("webhook signal stored", fields...)
	s.afterChange(ctx)
	if s.wsHub != nil {
		s.wsHub.BroadcastSignalCreated(signal)
	}

	return signal, nil
}

// CreateManual создаёт сигнал из дашборда (comment по умолчанию "Manual signal")
func (s *SignalService) CreateManual(ctx context.Context, req *ManualSignalRequest) (*models.Signal, error) {
	if req == nil {
		return nil, utils.ValidationErrors{{Field: "body", Message: "request body is required"}}
	}

	var verrs utils.ValidationErrors
	symbol, action := validateSymbolAction(&verrs, req.Symbol, req.Action)
	verrs.AddError("entry_price", utils.ValidatePrice(req.EntryPrice))
	verrs.AddError("stop_loss", utils.ValidatePrice(req.StopLoss))
	verrs.AddError("take_profit", utils.ValidatePrice(req.TakeProfit))
	volume := resolveVolume(&verrs, "volume", req.Volume)
	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		comment = models.CommentManual
	}

	signal := &models.Signal{
		Symbol:      symbol,
		Action:      action,
		OrderType:   strings.ToUpper(strings.TrimSpace(req.OrderType)),
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		Volume:      volume,
		Comment:     comment,
		MagicNumber: req.MagicNumber,
		Timestamp:   s.now().UTC(),
	}

	if err := s.signalRepo.Create(ctx, signal); err != nil {
		return nil, err
	}

	metrics.RecordSignalReceived(models.SourceManual, string(signal.Action))
	s.log.Info("manual signal created",
		utils.SignalID(signal.ID),
		utils.Source(models.SourceManual),
		utils.Symbol(signal.Symbol),
		utils.Action(string(signal.Action)),
		utils.Volume(signal.Volume),
	)
	s.afterChange(ctx)
	if s.wsHub != nil {
		s.wsHub.BroadcastSignalCreated(signal)
	}

	return signal, nil
}

// ListForEA возвращает сигналы по фильтру и число необработанных.
// Ошибка подсчёта не прерывает запрос: логируется, счётчик = 0.
func (s *SignalService) ListForEA(ctx context.Context, filter models.SignalFilter) (*models.SignalList, error) {
	if filter.Symbol != "" {
		filter.Symbol = utils.NormalizeSymbol(filter.Symbol)
	}
	filter.Limit = filter.NormalizedLimit()

	signals, err := s.signalRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	if signals == nil {
		signals = []models.Signal{}
	}

	unprocessed, err := s.signalRepo.CountUnprocessed(ctx)
	if err != nil {
		s.log.Warn("count unprocessed signals failed", utils.Err(err))
		unprocessed = 0
	} else {
		metrics.UpdateUnprocessed(unprocessed)
	}

	return &models.SignalList{
		Signals:          signals,
		Count:            len(signals),
		UnprocessedCount: unprocessed,
	}, nil
}

// GetSignal возвращает сигнал по ID
func (s *SignalService) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	if err := validateSignalID(id); err != nil {
		return nil, err
	}
	signal, err := s.signalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapSignalErr(err)
	}
	return signal, nil
}

// MarkProcessed принимает отчёт советника.
//
// - processed = true, success из отчёта
// - entry_price: только ненулевое значение
// - exit_price: только ненулевое значение, вместе с ним closed_at = now
// - pnl: если передан
func (s *SignalService) MarkProcessed(ctx context.Context, req *ProcessRequest) (*models.Signal, error) {
	if req == nil {
		return nil, utils.ValidationErrors{{Field: "body", Message: "request body is required"}}
	}
	if err := validateSignalID(req.ID); err != nil {
		return nil, err
	}
	if req.Success == nil {
		return nil, ErrSuccessRequired
	}

	var verrs utils.ValidationErrors
	verrs.AddError("entryPrice", utils.ValidatePrice(req.EntryPrice))
	verrs.AddError("exitPrice", utils.ValidatePrice(req.ExitPrice))
	if req.PnL != nil {
		verrs.AddError("pnl", validateFinite(*req.PnL))
	}
	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	upd := models.ProcessUpdate{
		Success: *req.Success,
		PnL:     req.PnL,
	}
	if req.EntryPrice != nil && *req.EntryPrice != 0 {
		upd.EntryPrice = req.EntryPrice
	}
	if req.ExitPrice != nil && *req.ExitPrice != 0 {
		upd.ExitPrice = req.ExitPrice
		closed := s.now().UTC()
		upd.ClosedAt = &closed
	}

	signal, err := s.signalRepo.MarkProcessed(ctx, req.ID, upd)
	if err != nil {
		return nil, mapSignalErr(err)
	}

	metrics.RecordSignalProcessed(upd.Success)
	fields := []utils.Field{
		utils.SignalID(signal.ID),
		utils.Symbol(signal.Symbol),
		utils.Bool("success", upd.Success),
	}
	if signal.PnL != nil {
		fields = append(fields, utils.PNL(*signal.PnL))
	}
	s.log.Info("signal processed by EA", fields...)

	s.afterChange(ctx)
	if s.wsHub != nil {
		s.wsHub.BroadcastSignalUpdated(signal)
	}

	return signal, nil
}

// UpdateSignal правит сигнал. Переданные поля перезаписываются, остальные сохраняются.
//
// Инвариант processed/pnl:
// - processed=false сбрасывает pnl и success
// - pnl или success при processed=false даёт ErrPnLRequiresProcessed
func (s *SignalService) UpdateSignal(ctx context.Context, id string, req *UpdateSignalRequest) (*models.Signal, error) {
	if err := validateSignalID(id); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, utils.ValidationErrors{{Field: "body", Message: "request body is required"}}
	}

	current, err := s.signalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapSignalErr(err)
	}

	next, err := s.applyUpdate(*current, req)
	if err != nil {
		return nil, err
	}

	updated, err := s.signalRepo.Update(ctx, &next)
	if err != nil {
		return nil, mapSignalErr(err)
	}

	s.log.Info("signal updated", utils.SignalID(updated.ID), utils.Symbol(updated.Symbol))
	s.afterChange(ctx)
	if s.wsHub != nil {
		s.wsHub.BroadcastSignalUpdated(updated)
	}

	return updated, nil
}

// applyUpdate накладывает правку на копию сигнала и проверяет инвариант
func (s *SignalService) applyUpdate(sig models.Signal, req *UpdateSignalRequest) (models.Signal, error) {
	var verrs utils.ValidationErrors

	if req.Symbol != nil || req.Action != nil {
		symbol, action := sig.Symbol, string(sig.Action)
		if req.Symbol != nil {
			symbol = *req.Symbol
		}
		if req.Action != nil {
			action = *req.Action
		}
		sig.Symbol, sig.Action = validateSymbolAction(&verrs, symbol, action)
	}
	if req.OrderType != nil {
		sig.OrderType = strings.ToUpper(strings.TrimSpace(*req.OrderType))
	}
	if req.EntryPrice != nil {
		verrs.AddError("entry_price", utils.ValidatePrice(req.EntryPrice))
		sig.EntryPrice = req.EntryPrice
	}
	if req.ExitPrice != nil {
		verrs.AddError("exit_price", utils.ValidatePrice(req.ExitPrice))
		sig.ExitPrice = req.ExitPrice
	}
	if req.StopLoss != nil {
		verrs.AddError("stop_loss", utils.ValidatePrice(req.StopLoss))
		sig.StopLoss = req.StopLoss
	}
	if req.TakeProfit != nil {
		verrs.AddError("take_profit", utils.ValidatePrice(req.TakeProfit))
		sig.TakeProfit = req.TakeProfit
	}
	if req.Volume != nil {
		verrs.AddError("volume", utils.ValidateVolume(*req.Volume))
		sig.Volume = *req.Volume
	}
	if req.PnL != nil {
		verrs.AddError("pnl", validateFinite(*req.PnL))
	}
	if req.Comment != nil {
		sig.Comment = strings.TrimSpace(*req.Comment)
	}
	if req.MagicNumber != nil {
		sig.MagicNumber = req.MagicNumber
	}
	if err := verrs.ErrOrNil(); err != nil {
		return sig, err
	}

	if req.Processed != nil {
		sig.Processed = *req.Processed
	}

	if !sig.Processed {
		if req.PnL != nil || req.Success != nil {
			return sig, ErrPnLRequiresProcessed
		}
		sig.PnL = nil
		sig.Success = nil
		sig.ClosedAt = nil
	} else {
		if req.PnL != nil {
			sig.PnL = req.PnL
		}
		if req.Success != nil {
			sig.Success = req.Success
		}
		if sig.ExitPrice != nil && sig.ClosedAt == nil {
			closed := s.now().UTC()
			sig.ClosedAt = &closed
		}
	}

	return sig, sig.CheckInvariant()
}

// DeleteSignal удаляет сигнал
func (s *SignalService) DeleteSignal(ctx context.Context, id string) error {
	if err := validateSignalID(id); err != nil {
		return err
	}
	if err := s.signalRepo.Delete(ctx, id); err != nil {
		return mapSignalErr(err)
	}

	s.log.Info("signal deleted", utils.SignalID(id))
	s.afterChange(ctx)
	if s.wsHub != nil {
		s.wsHub.BroadcastSignalDeleted(id)
	}
	return nil
}

// PurgeOlderThan удаляет обработанные сигналы старше retention (cron задача)
func (s *SignalService) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.signalRepo.DeleteOlderThan(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("old signals purged", utils.Int64("count", n))
		s.afterChange(ctx)
	}
	return n, nil
}

func (s *SignalService) afterChange(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

// ============ Вспомогательные функции ============

func validateSymbolAction(verrs *utils.ValidationErrors, rawSymbol, rawAction string) (string, models.SignalAction) {
	symbol := utils.NormalizeSymbol(rawSymbol)
	if symbol == "" {
		verrs.Add("symbol", "symbol is required")
	} else {
		verrs.AddError("symbol", utils.ValidateSymbol(symbol))
	}

	action := utils.NormalizeAction(rawAction)
	verrs.AddError("action", utils.ValidateAction(action))

	return symbol, models.SignalAction(action)
}

// resolveVolume: nil или 0 дают объём по умолчанию, отрицательный отклоняется
func resolveVolume(verrs *utils.ValidationErrors, field string, volume *float64) float64 {
	if volume == nil || *volume == 0 {
		return models.DefaultVolume
	}
	verrs.AddError(field, utils.ValidateVolume(*volume))
	return *volume
}

var errNotFinite = errors.New("must be a finite number")

func validateFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errNotFinite
	}
	return nil
}

func validateSignalID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidSignalID
	}
	return nil
}

func mapSignalErr(err error) error {
	if errors.Is(err, repository.ErrSignalNotFound) {
		return ErrSignalNotFound
	}
	return err
}
