// Package sqlite persists sync state on SQLite: pending queue items,
// unresolved conflicts, and sync metadata such as the last sync time.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	stdSync "sync"
	"time"

	"github.com/nerufuyo/nerulibrary-sub001/conflict"
	"github.com/nerufuyo/nerulibrary-sub001/entity"
	syncerrors "github.com/nerufuyo/nerulibrary-sub001/errors"
	"github.com/nerufuyo/nerulibrary-sub001/logging"
	"github.com/nerufuyo/nerulibrary-sub001/queue"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreClosed is returned for operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

const lastSyncKey = "last_sync_time"

// Config holds configuration options for the Store.
//
// Production-ready defaults are applied by DefaultConfig() including WAL
// mode and a bounded connection pool.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to
	// DataSourceName.
	EnableWAL bool

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
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
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "?_journal_mode=") {
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

// Store implements queue.Store plus conflict and sync-metadata
// persistence on a single SQLite database.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *logging.Logger
}

var _ queue.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id           TEXT PRIMARY KEY,
	entity_type  TEXT NOT NULL,
	entity_id    TEXT NOT NULL,
	operation    TEXT NOT NULL,
	payload      TEXT,
	created_at   INTEGER NOT NULL,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	priority     INTEGER NOT NULL DEFAULT 0,
	not_before   INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_order ON sync_queue(priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS sync_conflicts (
	id                TEXT PRIMARY KEY,
	entity_type       TEXT NOT NULL,
	entity_id         TEXT NOT NULL,
	local_data        TEXT,
	remote_data       TEXT,
	local_updated_at  INTEGER NOT NULL,
	remote_updated_at INTEGER NOT NULL,
	detected_at       INTEGER NOT NULL,
	UNIQUE(entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS sync_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// New opens (or creates) the database and prepares the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-store"))

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpStore, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, syncerrors.NewStorageError(syncerrors.OpStore, fmt.Errorf("prepare schema: %w", err))
	}

	logger.Debug("opened sync database", "data_source", config.DataSourceName, "wal_enabled", config.EnableWAL)

	return &Store{db: db, logger: logger}, nil
}

// NewWithDataSource is a convenience constructor using DefaultConfig.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Put inserts or updates a queue item.
func (s *Store) Put(ctx context.Context, item queue.Item) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return syncerrors.NewDataError(syncerrors.OpStore, string(item.EntityType), item.EntityID, err)
	}

	var notBefore int64
	if !item.NotBefore.IsZero() {
		notBefore = item.NotBefore.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_queue
			(id, entity_type, entity_id, operation, payload, created_at, retry_count, priority, not_before, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.EntityType), item.EntityID, string(item.Operation),
		string(payload), item.CreatedAt.UnixMilli(), item.RetryCount, item.Priority,
		notBefore, item.LastError,
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return nil
}

// Delete removes a queue item by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return nil
}

// List returns every persisted queue item.
func (s *Store) List(ctx context.Context) ([]queue.Item, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, operation, payload, created_at, retry_count, priority, not_before, last_error
		FROM sync_queue
		ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	defer rows.Close()

	var items []queue.Item
	for rows.Next() {
		var (
			item       queue.Item
			entityType string
			operation  string
			payload    sql.NullString
			createdAt  int64
			notBefore  int64
		)
		if err := rows.Scan(&item.ID, &entityType, &item.EntityID, &operation,
			&payload, &createdAt, &item.RetryCount, &item.Priority, &notBefore, &item.LastError); err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.OpStore, err)
		}
		item.EntityType = entity.Type(entityType)
		item.Operation = queue.Operation(operation)
		item.CreatedAt = time.UnixMilli(createdAt)
		if notBefore > 0 {
			item.NotBefore = time.UnixMilli(notBefore)
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &item.Payload); err != nil {
				return nil, syncerrors.NewDataError(syncerrors.OpStore, entityType, item.EntityID, err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return items, nil
}

// Clear removes every queue item.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return nil
}

// SaveConflict persists a pending conflict. A fresh detection for the
// same (entity_type, entity_id) replaces the prior record.
func (s *Store) SaveConflict(ctx context.Context, c conflict.SyncConflict) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	localData, err := json.Marshal(c.LocalData)
	if err != nil {
		return syncerrors.NewDataError(syncerrors.OpStore, string(c.EntityType), c.EntityID, err)
	}
	remoteData, err := json.Marshal(c.RemoteData)
	if err != nil {
		return syncerrors.NewDataError(syncerrors.OpStore, string(c.EntityType), c.EntityID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_conflicts
			(id, entity_type, entity_id, local_data, remote_data, local_updated_at, remote_updated_at, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			id = excluded.id,
			local_data = excluded.local_data,
			remote_data = excluded.remote_data,
			local_updated_at = excluded.local_updated_at,
			remote_updated_at = excluded.remote_updated_at,
			detected_at = excluded.detected_at`,
		c.ID, string(c.EntityType), c.EntityID, string(localData), string(remoteData),
		c.LocalUpdatedAt.UnixMilli(), c.RemoteUpdatedAt.UnixMilli(), c.DetectedAt.UnixMilli(),
	)
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return nil
}

// DeleteConflict removes a resolved conflict by id.
func (s *Store) DeleteConflict(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_conflicts WHERE id = ?`, id); err != nil {
		return syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return nil
}

// ListConflicts returns every pending conflict, oldest detection first.
func (s *Store) ListConflicts(ctx context.Context) ([]conflict.SyncConflict, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, local_data, remote_data, local_updated_at, remote_updated_at, detected_at
		FROM sync_conflicts
		ORDER BY detected_at ASC`)
	if err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	defer rows.Close()

	var conflicts []conflict.SyncConflict
	for rows.Next() {
		var (
			c               conflict.SyncConflict
			entityType      string
			localData       sql.NullString
			remoteData      sql.NullString
			localUpdatedAt  int64
			remoteUpdatedAt int64
			detectedAt      int64
		)
		if err := rows.Scan(&c.ID, &entityType, &c.EntityID, &localData, &remoteData,
			&localUpdatedAt, &remoteUpdatedAt, &detectedAt); err != nil {
			return nil, syncerrors.NewStorageError(syncerrors.OpStore, err)
		}
		c.EntityType = entity.Type(entityType)
		c.LocalUpdatedAt = time.UnixMilli(localUpdatedAt)
		c.RemoteUpdatedAt = time.UnixMilli(remoteUpdatedAt)
		c.DetectedAt = time.UnixMilli(detectedAt)
		if localData.Valid && localData.String != "" {
			if err := json.Unmarshal([]byte(localData.String), &c.LocalData); err != nil {
				return nil, syncerrors.NewDataError(syncerrors.OpStore, entityType, c.EntityID, err)
			}
		}
		if remoteData.Valid && remoteData.String != "" {
			if err := json.Unmarshal([]byte(remoteData.String), &c.RemoteData); err != nil {
				return nil, syncerrors.NewDataError(syncerrors.OpStore, entityType, c.EntityID, err)
			}
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return conflicts, nil
}

// LastSyncTime returns the recorded end of the last successful sync,
// zero when none has completed yet.
func (s *Store) LastSyncTime(ctx context.Context) (time.Time, error) {
	if err := s.checkOpen(); err != nil {
		return time.Time{}, err
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, lastSyncKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, syncerrors.NewStorageError(syncerrors.OpStore, err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, syncerrors.NewDataError(syncerrors.OpStore, "", "", err)
	}
	return t, nil
}

// SetLastSyncTime records the end of a successful sync.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastSyncKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return syncerrors.NewStorageError(syncerrors.OpStore, err)
	}
	return nil
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return syncerrors.NewStorageError(syncerrors.OpClose, err)
	}
	return nil
}
