package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
)

// SavedPromptStore holds prompts the user chose to keep. Save and Update do
// not check that collection_id refers to an existing collection; SaveChecked
// and UpdateChecked do, inside the write transaction.
type SavedPromptStore struct {
	m   *Manager
	now func() time.Time
}

func NewSavedPromptStore(m *Manager) *SavedPromptStore {
	return &SavedPromptStore{m: m, now: time.Now}
}

// WithClock replaces time.Now for created_at and updated_at.
func (s *SavedPromptStore) WithClock(now func() time.Time) *SavedPromptStore {
	s.now = now
	return s
}

const savedColumns = `id, original_prompt, enhanced_prompt, target, collection_id, notes, created_at, updated_at`

func (s *SavedPromptStore) Save(ctx context.Context, p NewSavedPrompt) (SavedPrompt, error) {
	return s.save(ctx, p, false)
}

// SaveChecked is Save that fails with KindNotFound when the collection does
// not exist. The check and the insert share one transaction, so a
// concurrent collection delete cannot slip in between.
func (s *SavedPromptStore) SaveChecked(ctx context.Context, p NewSavedPrompt) (SavedPrompt, error) {
	return s.save(ctx, p, true)
}

func (s *SavedPromptStore) save(ctx context.Context, p NewSavedPrompt, checked bool) (SavedPrompt, error) {
	switch {
	case strings.TrimSpace(p.EnhancedPrompt) == "":
		return SavedPrompt{}, apperr.NewValidation("enhanced prompt is required")
	case strings.TrimSpace(p.Target) == "":
		return SavedPrompt{}, apperr.NewValidation("target is required")
	case strings.TrimSpace(p.CollectionID) == "":
		return SavedPrompt{}, apperr.NewValidation("collection id is required")
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	sp := SavedPrompt{
		ID:             newID(now),
		OriginalPrompt: p.OriginalPrompt,
		EnhancedPrompt: p.EnhancedPrompt,
		Target:         p.Target,
		CollectionID:   p.CollectionID,
		Notes:          p.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.m.runTx(ctx, "saving prompt", func(tx *sql.Tx) error {
		if checked {
			if err := requireCollection(ctx, tx, sp.CollectionID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO saved_prompts (`+savedColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.ID, sp.OriginalPrompt, sp.EnhancedPrompt, sp.Target, sp.CollectionID, sp.Notes,
			toMillis(sp.CreatedAt), toMillis(sp.UpdatedAt))
		return err
	})
	if err != nil {
		return SavedPrompt{}, err
	}
	return sp, nil
}

func (s *SavedPromptStore) Get(ctx context.Context, id string) (SavedPrompt, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return SavedPrompt{}, err
	}
	sp, err := scanSaved(db.QueryRowContext(ctx,
		`SELECT `+savedColumns+` FROM saved_prompts WHERE id = ?`, id))
	if isNoRows(err) {
		return SavedPrompt{}, apperr.NewNotFound("saved prompt", id)
	}
	if err != nil {
		return SavedPrompt{}, apperr.NewPersistence("reading saved prompt", err)
	}
	return sp, nil
}

// List returns saved prompts newest first. A collection filter is served
// by idx_saved_prompts_collection_id, a target-only filter by
// idx_saved_prompts_target.
func (s *SavedPromptStore) List(ctx context.Context, f SavedPromptFilter) ([]SavedPrompt, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + savedColumns + ` FROM saved_prompts`
	var conds []string
	var args []any
	if f.CollectionID != "" {
		conds = append(conds, "collection_id = ?")
		args = append(args, f.CollectionID)
	}
	if f.Target != "" {
		conds = append(conds, "target = ?")
		args = append(args, f.Target)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.NewPersistence("listing saved prompts", err)
	}
	defer rows.Close()

	out := []SavedPrompt{}
	for rows.Next() {
		sp, err := scanSaved(rows)
		if err != nil {
			return nil, apperr.NewPersistence("listing saved prompts", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewPersistence("listing saved prompts", err)
	}
	return out, nil
}

// Update merges p into the prompt and refreshes updated_at. created_at is
// never changed.
func (s *SavedPromptStore) Update(ctx context.Context, id string, p SavedPromptPatch) (SavedPrompt, error) {
	return s.update(ctx, id, p, false)
}

// UpdateChecked is Update that verifies a new collection_id in the same
// transaction as the write.
func (s *SavedPromptStore) UpdateChecked(ctx context.Context, id string, p SavedPromptPatch) (SavedPrompt, error) {
	return s.update(ctx, id, p, true)
}

func (s *SavedPromptStore) update(ctx context.Context, id string, p SavedPromptPatch, checked bool) (SavedPrompt, error) {
	if p.EnhancedPrompt != nil && strings.TrimSpace(*p.EnhancedPrompt) == "" {
		return SavedPrompt{}, apperr.NewValidation("enhanced prompt must not be empty")
	}
	if p.CollectionID != nil && strings.TrimSpace(*p.CollectionID) == "" {
		return SavedPrompt{}, apperr.NewValidation("collection id must not be empty")
	}

	var out SavedPrompt
	err := s.m.runTx(ctx, "updating saved prompt", func(tx *sql.Tx) error {
		sp, err := scanSaved(tx.QueryRowContext(ctx,
			`SELECT `+savedColumns+` FROM saved_prompts WHERE id = ?`, id))
		if isNoRows(err) {
			return apperr.NewNotFound("saved prompt", id)
		}
		if err != nil {
			return err
		}

		if p.EnhancedPrompt != nil {
			sp.EnhancedPrompt = *p.EnhancedPrompt
		}
		if p.CollectionID != nil {
			if checked {
				if err := requireCollection(ctx, tx, *p.CollectionID); err != nil {
					return err
				}
			}
			sp.CollectionID = *p.CollectionID
		}
		if p.Notes != nil {
			sp.Notes = *p.Notes
		}
		sp.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

		if _, err := tx.ExecContext(ctx,
			`UPDATE saved_prompts SET enhanced_prompt = ?, collection_id = ?, notes = ?, updated_at = ? WHERE id = ?`,
			sp.EnhancedPrompt, sp.CollectionID, sp.Notes, toMillis(sp.UpdatedAt), id); err != nil {
			return err
		}
		out = sp
		return nil
	})
	if err != nil {
		return SavedPrompt{}, err
	}
	return out, nil
}

// Delete removes one saved prompt. Deleting a missing ID is not an error.
func (s *SavedPromptStore) Delete(ctx context.Context, id string) error {
	return s.m.runTx(ctx, "deleting saved prompt", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM saved_prompts WHERE id = ?`, id)
		return err
	})
}

// CountByCollection returns how many prompts reference the collection.
func (s *SavedPromptStore) CountByCollection(ctx context.Context, collectionID string) (int, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saved_prompts WHERE collection_id = ?`, collectionID).Scan(&n); err != nil {
		return 0, apperr.NewPersistence("counting saved prompts", err)
	}
	return n, nil
}

func requireCollection(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE id = ?`, id).Scan(&one)
	if isNoRows(err) {
		return apperr.NewNotFound("collection", id)
	}
	return err
}

func scanSaved(r rowScanner) (SavedPrompt, error) {
	var sp SavedPrompt
	var created, updated int64
	if err := r.Scan(&sp.ID, &sp.OriginalPrompt, &sp.EnhancedPrompt, &sp.Target, &sp.CollectionID,
		&sp.Notes, &created, &updated); err != nil {
		return SavedPrompt{}, err
	}
	sp.CreatedAt = fromMillis(created)
	sp.UpdatedAt = fromMillis(updated)
	return sp, nil
}
