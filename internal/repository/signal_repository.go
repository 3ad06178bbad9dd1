package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"signalhub/internal/models"
)

// Ошибки репозитория сигналов
var (
	ErrSignalNotFound = errors.New("signal not found")
)

const signalColumns = `id, symbol, action, order_type, entry_price, exit_price,
	stop_loss, take_profit, volume, comment, magic_number, pnl, processed,
	success, timestamp, closed_at, created_at, updated_at`

// SignalRepository - работа с таблицей signals
type SignalRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSignalRepository создает новый экземпляр репозитория
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	s := &models.Signal{}
	var action string
	err := row.Scan(
		&s.ID,
		&s.Symbol,
		&action,
		&s.OrderType,
		&s.EntryPrice,
		&s.ExitPrice,
		&s.StopLoss,
		&s.TakeProfit,
		&s.Volume,
		&s.Comment,
		&s.MagicNumber,
		&s.PnL,
		&s.Processed,
		&s.Success,
		&s.Timestamp,
		&s.ClosedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Action = models.SignalAction(action)
	return s, nil
}

func (r *SignalRepository) querySignals(ctx context.Context, query string, args ...interface{}) ([]models.Signal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]models.Signal, 0)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return signals, nil
}

// Create сохраняет новый сигнал; id, created_at и updated_at заполняются здесь
func (r *SignalRepository) Create(ctx context.Context, s *models.Signal) error {
	query := `
		INSERT INTO signals (
			id, symbol, action, order_type, entry_price, exit_price,
			stop_loss, take_profit, volume, comment, magic_number, pnl,
			processed, success, timestamp, closed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := r.now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Symbol,
		string(s.Action),
		s.OrderType,
		s.EntryPrice,
		s.ExitPrice,
		s.StopLoss,
		s.TakeProfit,
		s.Volume,
		s.Comment,
		s.MagicNumber,
		s.PnL,
		s.Processed,
		s.Success,
		s.Timestamp,
		s.ClosedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// GetByID возвращает сигнал по ID
func (r *SignalRepository) GetByID(ctx context.Context, id string) (*models.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`

	s, err := scanSignal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return s, nil
}

// List возвращает сигналы по фильтру, новые первыми
func (r *SignalRepository) List(ctx context.Context, filter models.SignalFilter) ([]models.Signal, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Unprocessed {
		conds = append(conds, "processed = FALSE")
	}
	if filter.Symbol != "" {
		conds = append(conds, "symbol = "+arg(strings.ToUpper(filter.Symbol)))
	}
	if filter.Magic != nil {
		conds = append(conds, "magic_number = "+arg(*filter.Magic))
	}
	if filter.Since != nil {
		conds = append(conds, "timestamp >= "+arg(*filter.Since))
	}

	query := `SELECT ` + signalColumns + ` FROM signals`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id LIMIT ` + arg(filter.NormalizedLimit())

	return r.querySignals(ctx, query, args...)
}

// CountUnprocessed количество сигналов, ещё не обработанных советником
func (r *SignalRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE processed = FALSE`,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetAll возвращает все сигналы (вход агрегатора статистики)
func (r *SignalRepository) GetAll(ctx context.Context) ([]models.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals ORDER BY timestamp ASC, id`
	return r.querySignals(ctx, query)
}

// GetRecent последние сигналы начиная с since
func (r *SignalRepository) GetRecent(ctx context.Context, since time.Time, limit int) ([]models.Signal, error) {
	if limit <= 0 {
		limit = models.DefaultRecentSignals
	}
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE timestamp >= $1
		ORDER BY timestamp DESC, id
		LIMIT $2`
	return r.querySignals(ctx, query, since, limit)
}

// MarkProcessed фиксирует отчёт советника. Цены, pnl и closed_at
// перезаписываются только переданными значениями.
func (r *SignalRepository) MarkProcessed(ctx context.Context, id string, upd models.ProcessUpdate) (*models.Signal, error) {
	query := `
		UPDATE signals SET
			processed = TRUE,
			success = $2,
			entry_price = COALESCE($3, entry_price),
			exit_price = COALESCE($4, exit_price),
			pnl = COALESCE($5, pnl),
			closed_at = COALESCE($6, closed_at),
			updated_at = $7
		WHERE id = $1
		RETURNING ` + signalColumns

	s, err := scanSignal(r.db.QueryRowContext(ctx, query,
		id,
		upd.Success,
		upd.EntryPrice,
		upd.ExitPrice,
		upd.PnL,
		upd.ClosedAt,
		r.now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return s, nil
}

// Update полностью перезаписывает редактируемые поля сигнала
func (r *SignalRepository) Update(ctx context.Context, s *models.Signal) (*models.Signal, error) {
	query := `
		UPDATE signals SET
			symbol = $2,
			action = $3,
			order_type = $4,
			entry_price = $5,
			exit_price = $6,
			stop_loss = $7,
			take_profit = $8,
			volume = $9,
			comment = $10,
			magic_number = $11,
			pnl = $12,
			processed = $13,
			success = $14,
			timestamp = $15,
			closed_at = $16,
			updated_at = $17
		WHERE id = $1
		RETURNING ` + signalColumns

	updated, err := scanSignal(r.db.QueryRowContext(ctx, query,
		s.ID,
		s.Symbol,
		string(s.Action),
		s.OrderType,
		s.EntryPrice,
		s.ExitPrice,
		s.StopLoss,
		s.TakeProfit,
		s.Volume,
		s.Comment,
		s.MagicNumber,
		s.PnL,
		s.Processed,
		s.Success,
		s.Timestamp,
		s.ClosedAt,
		r.now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return updated, nil
}

// Delete удаляет сигнал
func (r *SignalRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signals WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSignalNotFound
	}

	return nil
}

// DeleteOlderThan удаляет обработанные сигналы старше before
func (r *SignalRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM signals WHERE processed = TRUE AND timestamp < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
