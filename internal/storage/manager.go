package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
	"github.com/LazyMisha/prmptlaba/internal/retry"
)

// MemoryPath opens a private in-memory database. Used by tests.
const MemoryPath = ":memory:"

// Manager owns the database handle. It opens lazily, migrates the schema to
// SchemaVersion on open, and re-opens on the next call when a cached handle
// stops answering pings.
type Manager struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for open and migration events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager for the database file at path. Nothing is
// opened until the first call to DB.
func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{path: path, logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Path returns the database location.
func (m *Manager) Path() string { return m.path }

// DB returns a ready, migrated handle. Failures are KindPersistence errors.
func (m *Manager) DB(ctx context.Context) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		err := m.db.PingContext(ctx)
		if err == nil {
			return m.db, nil
		}
		if ctx.Err() != nil {
			return nil, apperr.NewPersistence("opening database", ctx.Err())
		}
		m.logger.Warn("database handle unhealthy, reopening", "path", m.path, "error", err)
		m.db.Close()
		m.db = nil
	}

	db, err := m.open(ctx)
	if err != nil {
		return nil, apperr.NewPersistence("opening database", err)
	}
	m.db = db
	return db, nil
}

// Close releases the cached handle, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

func (m *Manager) open(ctx context.Context) (*sql.DB, error) {
	memory := m.path == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", m.path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: writers serialize and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := m.migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// migrate applies every migration newer than the stored user_version and
// records SchemaVersion, all in one transaction.
func (m *Manager) migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}
		for _, step := range mig.steps {
			if _, err := tx.ExecContext(ctx, step); err != nil {
				return fmt.Errorf("applying migration %d (%s): %w", mig.version, mig.name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("recording user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migrations: %w", err)
	}

	m.logger.Info("database migrated", "path", m.path, "from", current, "to", SchemaVersion)
	return nil
}

// Version returns the stored schema version.
func (m *Manager) Version(ctx context.Context) (int, error) {
	db, err := m.DB(ctx)
	if err != nil {
		return 0, err
	}
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, apperr.NewPersistence("reading schema version", err)
	}
	return v, nil
}

// Schema lists the user tables and named indexes present in the database.
type Schema struct {
	Tables  []string `json:"tables"`
	Indexes []string `json:"indexes"`
}

// Schema reports the tables and indexes currently present, sorted by name.
func (m *Manager) Schema(ctx context.Context) (Schema, error) {
	db, err := m.DB(ctx)
	if err != nil {
		return Schema{}, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT type, name FROM sqlite_master
		 WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return Schema{}, apperr.NewPersistence("reading schema", err)
	}
	defer rows.Close()

	var s Schema
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return Schema{}, apperr.NewPersistence("reading schema", err)
		}
		if typ == "table" {
			s.Tables = append(s.Tables, name)
		} else {
			s.Indexes = append(s.Indexes, name)
		}
	}
	if err := rows.Err(); err != nil {
		return Schema{}, apperr.NewPersistence("reading schema", err)
	}
	sort.Strings(s.Tables)
	sort.Strings(s.Indexes)
	return s, nil
}

// busyPolicy retries transactions that lose a lock race.
var busyPolicy = retry.Policy{
	Attempts:   3,
	BaseDelay:  100 * time.Millisecond,
	Multiplier: 2,
	Retryable:  isBusy,
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx runs fn in a read-write transaction, retrying on SQLITE_BUSY.
// Errors fn returns as *apperr.Error pass through unchanged; everything
// else becomes a KindPersistence error labelled with op.
func (m *Manager) runTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	db, err := m.DB(ctx)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, busyPolicy, nil, func(ctx context.Context, _ int) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.NewPersistence(op, err)
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newID returns a ULID: 48 bits of millisecond time then 80 random bits.
func newID(now time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), idEntropy).String()
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
