package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is the action cache's SQLite-backed Cache implementation.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLiteStore connection parameters.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open creates and initializes a SQLiteStore at cfg.Path, running pending
// migrations before returning.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("action cache: database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	s := &SQLiteStore{path: cfg.Path}
	if err := s.init(ctx, cfg); err != nil {
		return nil, err
	}
	if err := s.migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context, cfg Config) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("action cache: opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("action cache: pinging database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("action cache: enabling foreign keys: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("action cache: creating migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("action cache: creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("action cache: creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("action cache: running migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup implements Cache.
func (s *SQLiteStore) Lookup(ctx context.Context, actionKey string) (*Record, bool, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM action_cache WHERE action_key = ?`, actionKey,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("action cache: looking up %s: %w", actionKey, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, hash_func, hex, size FROM action_cache_outputs WHERE action_key = ? ORDER BY path`, actionKey,
	)
	if err != nil {
		return nil, false, fmt.Errorf("action cache: loading outputs for %s: %w", actionKey, err)
	}
	defer rows.Close()

	var outputs []OutputEntry
	for rows.Next() {
		var out OutputEntry
		if err := rows.Scan(&out.Path, &out.Digest.HashFunc, &out.Digest.Hex, &out.Digest.Size); err != nil {
			return nil, false, fmt.Errorf("action cache: scanning output row: %w", err)
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("action cache: iterating output rows: %w", err)
	}

	return &Record{ActionKey: actionKey, Outputs: outputs, CreatedAt: createdAt}, true, nil
}

// Store implements Cache. The insert is idempotent: a record already
// present for record.ActionKey is replaced wholesale.
func (s *SQLiteStore) Store(ctx context.Context, record *Record) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("action cache: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM action_cache WHERE action_key = ?`, record.ActionKey,
	); err != nil {
		return fmt.Errorf("action cache: clearing prior record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO action_cache (action_key, created_at) VALUES (?, ?)`,
		record.ActionKey, record.CreatedAt,
	); err != nil {
		return fmt.Errorf("action cache: inserting record: %w", err)
	}

	for _, out := range record.Outputs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO action_cache_outputs (action_key, path, hash_func, hex, size) VALUES (?, ?, ?, ?, ?)`,
			record.ActionKey, out.Path, out.Digest.HashFunc, out.Digest.Hex, out.Digest.Size,
		); err != nil {
			return fmt.Errorf("action cache: inserting output %s: %w", out.Path, err)
		}
	}

	return tx.Commit()
}

var _ Cache = (*SQLiteStore)(nil)
