// Package postgres persists listed metadata into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

const defaultTable = "cfdi_metadata"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for metadata rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// MetadataStore upserts metadata rows into Postgres.
type MetadataStore struct {
	pool  pool
	table string
	now   func() time.Time
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*MetadataStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &MetadataStore{pool: p, table: table, now: time.Now}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*MetadataStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &MetadataStore{pool: p, table: name, now: time.Now}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *MetadataStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the metadata table when missing.
func (s *MetadataStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	uuid          TEXT PRIMARY KEY,
	download_type TEXT NOT NULL,
	attributes    JSONB NOT NULL,
	listed_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveMetadata upserts every row in one transaction. Existing rows take the new attributes.
func (s *MetadataStore) SaveMetadata(ctx context.Context, downloadType portal.DownloadType, list metadata.List) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("metadata store is not configured")
	}
	if list.Len() == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (uuid, download_type, attributes, listed_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (uuid) DO UPDATE SET
	download_type = EXCLUDED.download_type,
	attributes    = EXCLUDED.attributes,
	listed_at     = EXCLUDED.listed_at`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	listedAt := s.now().UTC()
	for _, item := range list.Items() {
		attributes, err := json.Marshal(item.Data())
		if err != nil {
			return 0, fmt.Errorf("marshal attributes of %s: %w", item.UUID(), err)
		}
		args := []any{strings.ToLower(item.UUID()), downloadType.String(), attributes, listedAt}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("upsert metadata %s: %w", item.UUID(), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit metadata: %w", err)
	}
	return list.Len(), nil
}
