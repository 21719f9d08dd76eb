package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.OrderRepository, ports.OrderTargetRepository,
// ports.PnlLogRepository and ports.ChannelRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/signal_trade_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, now: time.Now}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_for_handle INTEGER NOT NULL DEFAULT 0,
		total_pnl REAL NOT NULL DEFAULT 0,
		today_pnl REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exchange_order_id TEXT NOT NULL,
		channel_id INTEGER NOT NULL REFERENCES channels(id) ON UPDATE CASCADE ON DELETE CASCADE,
		symbol TEXT NOT NULL,
		direction INTEGER NOT NULL,
		type INTEGER NOT NULL,
		leverage INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		sl_price REAL DEFAULT NULL,
		qty REAL NOT NULL,
		remaining_qty REAL DEFAULT NULL,
		status INTEGER NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL,
		enter_balance REAL NOT NULL,
		pnl REAL DEFAULT NULL,
		pnl_percent REAL DEFAULT NULL,
		commission REAL DEFAULT NULL,
		last_exit_order_id INTEGER DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON UPDATE CASCADE ON DELETE CASCADE,
		exchange_tp_id TEXT DEFAULT NULL,
		type INTEGER NOT NULL,
		price REAL NOT NULL,
		qty REAL NOT NULL,
		trigger_by INTEGER NOT NULL,
		is_triggered INTEGER NOT NULL DEFAULT 0,
		triggered_at TIMESTAMP DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_pnl_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON UPDATE CASCADE ON DELETE CASCADE,
		pnl REAL NOT NULL,
		pnl_percent REAL DEFAULT NULL,
		reason INTEGER DEFAULT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_channel_id ON orders (channel_id);
	CREATE INDEX IF NOT EXISTS idx_orders_exchange_order_id ON orders (exchange_order_id);
	CREATE INDEX IF NOT EXISTS idx_order_targets_order_id ON order_targets (order_id);
	CREATE INDEX IF NOT EXISTS idx_order_targets_exchange_tp_id ON order_targets (exchange_tp_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- OrderRepository Implementation ---

// CreateOrderWithTargets saves an order and all of its exit legs in one
// transaction. Either everything lands or nothing does.
func (r *Repository) CreateOrderWithTargets(ctx context.Context, order *domain.Order, targets []*domain.OrderTarget) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for order %s: %w", order.Symbol, err)
	}
	defer tx.Rollback()

	now := r.now().UTC()

	const orderQuery = `
	INSERT INTO orders (exchange_order_id, channel_id, symbol, direction, type, leverage,
	                    entry_price, sl_price, qty, remaining_qty, status, opened_at,
	                    enter_balance, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, orderQuery,
		order.ExchangeOrderID, order.ChannelID, order.Symbol, order.Direction, order.Type, order.Leverage,
		order.EntryPrice, order.SLPrice, order.Qty, order.RemainingQty, order.Status, order.OpenedAt,
		order.EnterBalance, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order for symbol %s: %w", order.Symbol, err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for order %s: %w", order.Symbol, err)
	}

	const targetQuery = `
	INSERT INTO order_targets (order_id, exchange_tp_id, type, price, qty, trigger_by,
	                           is_triggered, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, target := range targets {
		res, err := tx.ExecContext(ctx, targetQuery,
			orderID, nullString(target.ExchangeTPID), target.Type, target.Price, target.Qty,
			target.TriggerBy, target.IsTriggered, now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert target at price %f for order %s: %w", target.Price, order.Symbol, err)
		}
		targetID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get last insert ID for target of order %s: %w", order.Symbol, err)
		}
		target.ID = targetID
		target.OrderID = orderID
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit order %s with %d targets: %w", order.Symbol, len(targets), err)
	}

	order.ID = orderID
	r.logger.Debug(ctx, "Order created", map[string]interface{}{
		"orderID": orderID, "symbol": order.Symbol, "targets": len(targets),
	})
	return orderID, nil
}

// FindOrderByID retrieves an order by its id.
func (r *Repository) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query order by ID %d: %w", id, err)
	}
	return order, nil
}

// UpdateOrderFill applies the cumulative state of an order after a fill.
func (r *Repository) UpdateOrderFill(ctx context.Context, order *domain.Order) error {
	const query = `
	UPDATE orders
	SET remaining_qty = ?, status = ?, closed_at = ?, pnl = ?, pnl_percent = ?,
	    commission = ?, last_exit_order_id = ?, updated_at = ?
	WHERE id = ?`

	var closedAt sql.NullTime
	if !order.ClosedAt.IsZero() {
		closedAt = sql.NullTime{Time: order.ClosedAt, Valid: true}
	}
	var lastExit sql.NullInt64
	if order.LastExitOrderID != 0 {
		lastExit = sql.NullInt64{Int64: order.LastExitOrderID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		order.RemainingQty, order.Status, closedAt, order.Pnl, order.PnlPercent,
		order.Commission, lastExit, r.now().UTC(),
		order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order ID %d: %w", order.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update order ID %d: %w", order.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order ID %d not found for update: %w", order.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Order updated", map[string]interface{}{
		"orderID": order.ID, "status": order.Status.Label(), "remainingQty": order.RemainingQty,
	})
	return nil
}

// --- OrderTargetRepository Implementation ---

// FindTargetByExchangeID retrieves the exit leg carrying the given
// exchange-assigned id together with its parent order.
func (r *Repository) FindTargetByExchangeID(ctx context.Context, exchangeTPID string) (*domain.OrderTarget, *domain.Order, error) {
	const query = `
	SELECT id, order_id, COALESCE(exchange_tp_id, ''), type, price, qty, trigger_by,
	       is_triggered, triggered_at, created_at, updated_at
	FROM order_targets
	WHERE exchange_tp_id = ?`

	row := r.db.QueryRowContext(ctx, query, exchangeTPID)
	target, err := scanTarget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil // Not an error, just not found
		}
		return nil, nil, fmt.Errorf("failed to query target by exchange ID %s: %w", exchangeTPID, err)
	}

	order, err := r.FindOrderByID(ctx, target.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, fmt.Errorf("target %d references missing order %d: %w", target.ID, target.OrderID, ports.ErrNotFound)
	}
	return target, order, nil
}

// MarkTargetTriggered flags a target as triggered at the given time.
func (r *Repository) MarkTargetTriggered(ctx context.Context, targetID int64, at time.Time) error {
	const query = `
	UPDATE order_targets SET is_triggered = 1, triggered_at = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, at, r.now().UTC(), targetID)
	if err != nil {
		return fmt.Errorf("failed to mark target ID %d triggered: %w", targetID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for target ID %d: %w", targetID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("target ID %d not found for update: %w", targetID, ports.ErrNotFound)
	}
	return nil
}

// --- PnlLogRepository Implementation ---

// AppendPnlLog saves one realized P&L record and returns its assigned ID.
func (r *Repository) AppendPnlLog(ctx context.Context, log *domain.TradePnlLog) (int64, error) {
	const query = `
	INSERT INTO trade_pnl_logs (order_id, pnl, pnl_percent, reason, created_at)
	VALUES (?, ?, ?, ?, ?)`

	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}
	result, err := r.db.ExecContext(ctx, query, log.OrderID, log.Pnl, log.PnlPercent, log.Reason, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pnl log for order %d: %w", log.OrderID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for pnl log of order %d: %w", log.OrderID, err)
	}
	log.ID = id
	return id, nil
}

// ListPnlLogs retrieves all realized P&L records in chronological order.
// Used by the export tooling, not by the trading path.
func (r *Repository) ListPnlLogs(ctx context.Context) ([]*domain.TradePnlLog, error) {
	const query = `
	SELECT id, order_id, pnl, pnl_percent, reason, created_at
	FROM trade_pnl_logs ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pnl logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*domain.TradePnlLog, 0)
	for rows.Next() {
		var l domain.TradePnlLog
		var pnlPercent sql.NullFloat64
		var reason sql.NullInt64
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Pnl, &pnlPercent, &reason, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pnl log: %w", err)
		}
		l.PnlPercent = pnlPercent.Float64
		l.Reason = domain.TriggerType(reason.Int64)
		logs = append(logs, &l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pnl log rows: %w", err)
	}
	return logs, nil
}

// --- ChannelRepository Implementation ---

// FindOrCreateChannel returns the channel row for a transport-side id,
// creating it on first sight. New channels start disabled: messages are
// ignored until the operator flips is_for_handle.
func (r *Repository) FindOrCreateChannel(ctx context.Context, cid, name string) (*domain.Channel, error) {
	const selectQuery = selectChannel + ` WHERE cid = ?`

	row := r.db.QueryRowContext(ctx, selectQuery, cid)
	channel, err := scanChannel(row)
	if err == nil {
		return channel, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query channel by cid %s: %w", cid, err)
	}

	now := r.now().UTC()
	const insertQuery = `
	INSERT INTO channels (cid, name, is_for_handle, created_at, updated_at)
	VALUES (?, ?, 0, ?, ?)`

	result, err := r.db.ExecContext(ctx, insertQuery, cid, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert channel %s: %w", cid, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for channel %s: %w", cid, err)
	}
	r.logger.Info(ctx, "New channel registered", map[string]interface{}{"channelID": id, "cid": cid, "name": name})
	return &domain.Channel{ID: id, CID: cid, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// ListChannels retrieves all channels.
func (r *Repository) ListChannels(ctx context.Context) ([]*domain.Channel, error) {
	rows, err := r.db.QueryContext(ctx, selectChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*domain.Channel, 0)
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel during ListChannels: %w", err)
		}
		channels = append(channels, channel)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}
	return channels, nil
}

// AddChannelPnl accumulates realized P&L onto a channel's totals.
func (r *Repository) AddChannelPnl(ctx context.Context, channelID int64, pnl float64) error {
	const query = `
	UPDATE channels SET total_pnl = total_pnl + ?, today_pnl = today_pnl + ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, pnl, pnl, r.now().UTC(), channelID)
	if err != nil {
		return fmt.Errorf("failed to add pnl to channel ID %d: %w", channelID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for channel ID %d: %w", channelID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("channel ID %d not found for update: %w", channelID, ports.ErrNotFound)
	}
	return nil
}

// --- Helper Scan Functions ---

const selectOrder = `
	SELECT id, exchange_order_id, channel_id, symbol, direction, type, leverage,
	       entry_price, COALESCE(sl_price, 0), qty, COALESCE(remaining_qty, 0), status,
	       opened_at, closed_at, enter_balance, COALESCE(pnl, 0), COALESCE(pnl_percent, 0),
	       COALESCE(commission, 0), COALESCE(last_exit_order_id, 0), created_at, updated_at
	FROM orders`

const selectChannel = `
	SELECT id, cid, name, is_for_handle, total_pnl, today_pnl, created_at, updated_at
	FROM channels`

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder scans a row into a domain.Order struct.
func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var closedAt sql.NullTime
	err := s.Scan(
		&o.ID, &o.ExchangeOrderID, &o.ChannelID, &o.Symbol, &o.Direction, &o.Type, &o.Leverage,
		&o.EntryPrice, &o.SLPrice, &o.Qty, &o.RemainingQty, &o.Status,
		&o.OpenedAt, &closedAt, &o.EnterBalance, &o.Pnl, &o.PnlPercent,
		&o.Commission, &o.LastExitOrderID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if closedAt.Valid {
		o.ClosedAt = closedAt.Time
	}
	return o, nil
}

// scanTarget scans a row into a domain.OrderTarget struct.
func scanTarget(s scanner) (*domain.OrderTarget, error) {
	t := &domain.OrderTarget{}
	var triggeredAt sql.NullTime
	err := s.Scan(
		&t.ID, &t.OrderID, &t.ExchangeTPID, &t.Type, &t.Price, &t.Qty, &t.TriggerBy,
		&t.IsTriggered, &triggeredAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if triggeredAt.Valid {
		t.TriggeredAt = triggeredAt.Time
	}
	return t, nil
}

// scanChannel scans a row into a domain.Channel struct.
func scanChannel(s scanner) (*domain.Channel, error) {
	c := &domain.Channel{}
	err := s.Scan(
		&c.ID, &c.CID, &c.Name, &c.IsForHandle, &c.TotalPnl, &c.TodayPnl, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
