// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/storage"
)

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of pgxpool.Pool the stores need; pgxmock satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// NewPool creates a pgx connection pool from the config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// ContentStore implements storage.ContentStore on Postgres.
type ContentStore struct {
	db     DB
	logger *zap.Logger
}

// NewContentStore wraps an existing pool or mock.
func NewContentStore(db DB, logger *zap.Logger) *ContentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentStore{db: db, logger: logger}
}

// Close releases the underlying pool.
func (s *ContentStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// LoadBySource reads all persisted rows for the source.
func (s *ContentStore) LoadBySource(ctx context.Context, source string) (map[string]storage.ContentRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT content_id, content_type, title, status, meta FROM contents WHERE source = $1`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]storage.ContentRow)
	for rows.Next() {
		row := storage.ContentRow{Source: source}
		var status string
		var metaRaw []byte
		if err := rows.Scan(&row.ContentID, &row.ContentType, &row.Title, &status, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan content row: %w", err)
		}
		row.Status = catalog.Status(status)
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &row.Meta); err != nil {
				return nil, fmt.Errorf("decode meta for %s: %w", row.ContentID, err)
			}
		}
		out[row.ContentID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return out, nil
}

// LoadStatuses reads the persisted status per content id for the source.
func (s *ContentStore) LoadStatuses(ctx context.Context, source string) (map[string]catalog.Status, error) {
	rows, err := s.db.Query(ctx,
		`SELECT content_id, status FROM contents WHERE source = $1`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]catalog.Status)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		out[id] = catalog.Status(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return out, nil
}

// Apply writes the change set in one transaction: all updates, then all
// inserts. A failure rolls back the whole batch.
func (s *ContentStore) Apply(ctx context.Context, changes storage.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sync transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && rerr != pgx.ErrTxClosed {
			s.logger.Warn("rollback sync transaction", zap.Error(rerr))
		}
	}()

	for _, row := range changes.Updates {
		meta, err := json.Marshal(row.Meta)
		if err != nil {
			return fmt.Errorf("encode meta for %s: %w", row.ContentID, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE contents
			 SET content_type = $1, title = $2, status = $3, meta = $4, updated_at = NOW()
			 WHERE content_id = $5 AND source = $6`,
			row.ContentType, row.Title, string(row.Status), meta, row.ContentID, row.Source,
		); err != nil {
			return fmt.Errorf("update content %s: %w", row.ContentID, err)
		}
	}

	for _, row := range changes.Inserts {
		meta, err := json.Marshal(row.Meta)
		if err != nil {
			return fmt.Errorf("encode meta for %s: %w", row.ContentID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO contents (content_id, source, content_type, title, status, meta)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row.ContentID, row.Source, row.ContentType, row.Title, string(row.Status), meta,
		); err != nil {
			return fmt.Errorf("insert content %s: %w", row.ContentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit sync transaction: %w", err)
	}
	return nil
}
