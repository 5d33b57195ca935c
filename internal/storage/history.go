package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
)

// DefaultHistoryLimit is the number of entries kept when no limit is set.
const DefaultHistoryLimit = 50

// HistoryStore is a capacity-bounded log of enhancements. Saving past the
// limit evicts the oldest entries in the same transaction.
type HistoryStore struct {
	m       *Manager
	limit   int
	now     func() time.Time
	logger  *slog.Logger
	onEvict func(n int)
}

type HistoryOption func(*HistoryStore)

// WithHistoryClock replaces time.Now for assigned timestamps.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(s *HistoryStore) { s.now = now }
}

// WithEvictionObserver is called with the number of rows evicted by a save.
func WithEvictionObserver(fn func(n int)) HistoryOption {
	return func(s *HistoryStore) { s.onEvict = fn }
}

// WithHistoryLogger sets the logger used for degraded reads.
func WithHistoryLogger(l *slog.Logger) HistoryOption {
	return func(s *HistoryStore) { s.logger = l }
}

func NewHistoryStore(m *Manager, limit int, opts ...HistoryOption) *HistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s := &HistoryStore{m: m, limit: limit, now: time.Now, logger: m.logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Limit returns the maximum number of entries kept.
func (s *HistoryStore) Limit() int { return s.limit }

// Save stores e with a fresh ID and timestamp, then evicts the oldest
// entries beyond the limit.
func (s *HistoryStore) Save(ctx context.Context, e NewHistoryEntry) (HistoryEntry, error) {
	if strings.TrimSpace(e.EnhancedPrompt) == "" {
		return HistoryEntry{}, apperr.NewValidation("enhanced prompt is required")
	}
	if strings.TrimSpace(e.Target) == "" {
		return HistoryEntry{}, apperr.NewValidation("target is required")
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	entry := HistoryEntry{
		ID:             newID(now),
		OriginalPrompt: e.OriginalPrompt,
		EnhancedPrompt: e.EnhancedPrompt,
		Target:         e.Target,
		Timestamp:      now,
	}

	var evicted int64
	err := s.m.runTx(ctx, "saving history entry", func(tx *sql.Tx) error {
		evicted = 0
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history (id, original_prompt, enhanced_prompt, target, timestamp) VALUES (?, ?, ?, ?, ?)`,
			entry.ID, entry.OriginalPrompt, entry.EnhancedPrompt, entry.Target, toMillis(entry.Timestamp),
		); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&count); err != nil {
			return err
		}
		if count <= s.limit {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM history WHERE id IN (
				SELECT id FROM history ORDER BY timestamp ASC, rowid ASC LIMIT ?
			)`, count-s.limit)
		if err != nil {
			return err
		}
		evicted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return HistoryEntry{}, err
	}

	if evicted > 0 && s.onEvict != nil {
		s.onEvict(int(evicted))
	}
	return entry, nil
}

// ListAll returns every entry, newest first. History is non-critical, so a
// storage failure is logged and yields an empty list.
func (s *HistoryStore) ListAll(ctx context.Context) ([]HistoryEntry, error) {
	entries, err := s.list(ctx, -1, 0)
	if err != nil {
		s.logger.Warn("history unavailable, returning empty list", "error", err)
		return []HistoryEntry{}, nil
	}
	return entries, nil
}

// List returns up to limit entries, newest first, skipping offset.
func (s *HistoryStore) List(ctx context.Context, limit, offset int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = s.limit
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.list(ctx, limit, offset)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.NewPersistence("listing history", err)
	}
	return entries, nil
}

func (s *HistoryStore) list(ctx context.Context, limit, offset int) ([]HistoryEntry, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, original_prompt, enhanced_prompt, target, timestamp
		 FROM history ORDER BY timestamp DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry with the given ID.
func (s *HistoryStore) Get(ctx context.Context, id string) (HistoryEntry, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return HistoryEntry{}, err
	}
	e, err := scanHistory(db.QueryRowContext(ctx,
		`SELECT id, original_prompt, enhanced_prompt, target, timestamp FROM history WHERE id = ?`, id))
	if isNoRows(err) {
		return HistoryEntry{}, apperr.NewNotFound("history entry", id)
	}
	if err != nil {
		return HistoryEntry{}, apperr.NewPersistence("reading history entry", err)
	}
	return e, nil
}

// Delete removes one entry. Deleting a missing ID is not an error.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	return s.m.runTx(ctx, "deleting history entry", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
		return err
	})
}

// Clear removes every entry.
func (s *HistoryStore) Clear(ctx context.Context) error {
	return s.m.runTx(ctx, "clearing history", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM history`)
		return err
	})
}

// Count returns the number of stored entries.
func (s *HistoryStore) Count(ctx context.Context) (int, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, apperr.NewPersistence("counting history", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(r rowScanner) (HistoryEntry, error) {
	var e HistoryEntry
	var ts int64
	if err := r.Scan(&e.ID, &e.OriginalPrompt, &e.EnhancedPrompt, &e.Target, &ts); err != nil {
		return HistoryEntry{}, err
	}
	e.Timestamp = fromMillis(ts)
	return e, nil
}
