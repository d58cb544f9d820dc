// Package sqlite provides the durable SQLite implementation of the
// beautypos local store: records, pending-operation queue, stock-movement
// log and scalar settings, all in one database file so a single fsync
// boundary covers the terminal's state.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/localstore"
	"github.com/beautystore/beautypos/logging"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Config holds configuration options for the Store.
//
// Production-ready defaults are applied by DefaultConfig() including WAL
// mode and a bounded connection pool.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging for better concurrency. When
	// true, "?_journal_mode=WAL" is appended to DataSourceName.
	EnableWAL bool

	// Connection pool settings.
	MaxOpenConns    int           // Default: 25
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 1h
	ConnMaxIdleTime time.Duration // Default: 5m
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		if strings.Contains(c.DataSourceName, "?") {
			c.DataSourceName += "&_journal_mode=WAL"
		} else {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store implements localstore.Store, Queue, MovementLog and Settings on a
// single SQLite database.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
}

var (
	_ localstore.Store       = (*Store)(nil)
	_ localstore.Queue       = (*Store)(nil)
	_ localstore.MovementLog = (*Store)(nil)
	_ localstore.Settings    = (*Store)(nil)
)

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = fmt.Errorf("store is closed")

// New opens (or creates) the database and bootstraps the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-store"))
	logger.Info("opening local store",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

// NewWithDataSource is a convenience constructor using DefaultConfig.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS records (
        collection   TEXT NOT NULL,
        id           TEXT NOT NULL,
        body         TEXT NOT NULL,
        sync_state   TEXT NOT NULL DEFAULT 'pending',
        updated_at   TIMESTAMP NOT NULL,
        PRIMARY KEY (collection, id)
    );
    CREATE TABLE IF NOT EXISTS pending_queue (
        seq           INTEGER PRIMARY KEY AUTOINCREMENT,
        collection    TEXT NOT NULL,
        kind          TEXT NOT NULL,
        record_id     TEXT NOT NULL,
        payload       TEXT NOT NULL,
        enqueued_at   TIMESTAMP NOT NULL,
        attempt_count INTEGER NOT NULL DEFAULT 0
    );
    CREATE TABLE IF NOT EXISTS stock_movements (
        rowid_alias   INTEGER PRIMARY KEY AUTOINCREMENT,
        id            TEXT NOT NULL UNIQUE,
        product_id    TEXT NOT NULL,
        type          TEXT NOT NULL,
        quantity      INTEGER NOT NULL,
        reason        TEXT,
        created_at    TIMESTAMP NOT NULL
    );
    CREATE TABLE IF NOT EXISTS settings (
        key    TEXT PRIMARY KEY,
        value  TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_records_collection ON records (collection);
    CREATE INDEX IF NOT EXISTS idx_queue_collection ON pending_queue (collection, seq);
    CREATE INDEX IF NOT EXISTS idx_movements_product ON stock_movements (product_id);
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Get returns every record of a collection in insertion order.
func (s *Store) Get(ctx context.Context, collection domain.Collection) ([]localstore.Record, error) {
	if err := s.guard(); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	query := `SELECT id, body, sync_state, updated_at FROM records WHERE collection = ? ORDER BY rowid ASC`
	rows, err := s.db.QueryContext(ctx, query, string(collection))
	if err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}
	defer rows.Close()

	var records []localstore.Record
	for rows.Next() {
		record := localstore.Record{Collection: collection}
		var body string
		var state string
		if err := rows.Scan(&record.ID, &body, &state, &record.UpdatedAt); err != nil {
			return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
		}
		record.Body = []byte(body)
		record.SyncState = domain.SyncState(state)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	return records, nil
}

// Put upserts a record by id.
func (s *Store) Put(ctx context.Context, record localstore.Record) error {
	return s.PutBatch(ctx, []localstore.Record{record})
}

// PutBatch upserts several records in one transaction.
func (s *Store) PutBatch(ctx context.Context, records []localstore.Record) error {
	if err := s.guard(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO records (collection, id, body, sync_state, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (collection, id) DO UPDATE SET
            body = excluded.body,
            sync_state = excluded.sync_state,
            updated_at = excluded.updated_at`)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	defer stmt.Close()

	for _, record := range records {
		updatedAt := record.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err = stmt.ExecContext(ctx,
			string(record.Collection), record.ID, string(record.Body),
			string(record.SyncState), updatedAt); err != nil {
			return posErrors.NewStorageError(posErrors.OpStore, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return nil
}

// Remove deletes a record, reporting false when the id was not present.
func (s *Store) Remove(ctx context.Context, collection domain.Collection, id string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, posErrors.NewStorageError(posErrors.OpStore, err)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, string(collection), id)
	if err != nil {
		return false, posErrors.NewStorageError(posErrors.OpStore, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return affected > 0, nil
}

// SetSyncState updates only the sync-state column.
func (s *Store) SetSyncState(ctx context.Context, collection domain.Collection, id string, state domain.SyncState) error {
	if err := s.guard(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET sync_state = ? WHERE collection = ? AND id = ?`,
		string(state), string(collection), id)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return nil
}

// Enqueue appends a pending operation and assigns its Seq.
func (s *Store) Enqueue(ctx context.Context, op *domain.PendingOperation) error {
	if err := s.guard(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}

	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
        INSERT INTO pending_queue (collection, kind, record_id, payload, enqueued_at, attempt_count)
        VALUES (?, ?, ?, ?, ?, ?)`,
		string(op.Collection), string(op.Kind), op.RecordID, string(op.Payload),
		op.EnqueuedAt, op.AttemptCount)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}

	op.Seq, err = result.LastInsertId()
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return nil
}

// PeekAll returns the queue snapshot in enqueue order.
func (s *Store) PeekAll(ctx context.Context) ([]domain.PendingOperation, error) {
	if err := s.guard(); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT seq, collection, kind, record_id, payload, enqueued_at, attempt_count
        FROM pending_queue ORDER BY seq ASC`)
	if err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}
	defer rows.Close()

	var ops []domain.PendingOperation
	for rows.Next() {
		var op domain.PendingOperation
		var collection, kind, payload string
		if err := rows.Scan(&op.Seq, &collection, &kind, &op.RecordID, &payload,
			&op.EnqueuedAt, &op.AttemptCount); err != nil {
			return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
		}
		op.Collection = domain.Collection(collection)
		op.Kind = domain.OperationKind(kind)
		op.Payload = []byte(payload)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	return ops, nil
}

// Dequeue removes a confirmed operation.
func (s *Store) Dequeue(ctx context.Context, seq int64) error {
	if err := s.guard(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_queue WHERE seq = ?`, seq)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return nil
}

// IncrementAttempt bumps the attempt counter of a queued operation.
func (s *Store) IncrementAttempt(ctx context.Context, seq int64) error {
	if err := s.guard(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_queue SET attempt_count = attempt_count + 1 WHERE seq = ?`, seq)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return nil
}

// Count reports the number of queued operations.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_queue`).Scan(&count); err != nil {
		return 0, posErrors.NewStorageError(posErrors.OpLoad, err)
	}
	return count, nil
}

// AppendMovement appends one stock-movement entry to the audit trail.
func (s *Store) AppendMovement(ctx context.Context, movement domain.StockMovement) error {
	if err := s.guard(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}

	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stock_movements (id, product_id, type, quantity, reason, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		movement.ID, movement.ProductID, string(movement.Type),
		movement.Quantity, movement.Reason, movement.CreatedAt)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return nil
}

// RecentMovements returns up to limit movements, most recent first.
func (s *Store) RecentMovements(ctx context.Context, limit int) ([]domain.StockMovement, error) {
	if err := s.guard(); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, product_id, type, quantity, reason, created_at
        FROM stock_movements ORDER BY rowid_alias DESC LIMIT ?`, limit)
	if err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}
	defer rows.Close()

	var movements []domain.StockMovement
	for rows.Next() {
		var movement domain.StockMovement
		var movementType string
		var reason sql.NullString
		if err := rows.Scan(&movement.ID, &movement.ProductID, &movementType,
			&movement.Quantity, &reason, &movement.CreatedAt); err != nil {
			return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
		}
		movement.Type = domain.MovementType(movementType)
		movement.Reason = reason.String
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	return movements, nil
}

// GetSetting returns a scalar setting and whether it exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	if err := s.guard(); err != nil {
		return "", false, posErrors.NewStorageError(posErrors.OpLoad, err)
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, posErrors.NewStorageError(posErrors.OpLoad, err)
	}
	return value, true, nil
}

// PutSetting upserts a scalar setting.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	if err := s.guard(); err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO settings (key, value) VALUES (?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return posErrors.NewStorageError(posErrors.OpStore, err)
	}
	return nil
}

// Stats returns database statistics for monitoring.
func (s *Store) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
