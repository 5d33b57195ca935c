package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
)

const maxCollectionName = 100

// CollectionStore manages user collections and the per-target defaults.
type CollectionStore struct {
	m   *Manager
	now func() time.Time
}

func NewCollectionStore(m *Manager) *CollectionStore {
	return &CollectionStore{m: m, now: time.Now}
}

// WithClock replaces time.Now for created_at and updated_at.
func (s *CollectionStore) WithClock(now func() time.Time) *CollectionStore {
	s.now = now
	return s
}

const collectionColumns = `id, name, description, color, is_default, sort_order, created_at, updated_at`

// Create adds a user collection at the end of the display order.
func (s *CollectionStore) Create(ctx context.Context, c NewCollection) (Collection, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return Collection{}, apperr.NewValidation("collection name is required")
	}
	if len([]rune(name)) > maxCollectionName {
		return Collection{}, apperr.NewValidation("collection name must be at most %d characters", maxCollectionName)
	}
	return s.insert(ctx, Collection{Name: name, Description: c.Description, Color: c.Color})
}

func (s *CollectionStore) insert(ctx context.Context, col Collection) (Collection, error) {
	err := s.m.runTx(ctx, "creating collection", func(tx *sql.Tx) error {
		var err error
		col, err = s.insertTx(ctx, tx, col)
		return err
	})
	if err != nil {
		return Collection{}, err
	}
	return col, nil
}

func (s *CollectionStore) insertTx(ctx context.Context, tx *sql.Tx, col Collection) (Collection, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	col.ID = newID(now)
	col.CreatedAt = now
	col.UpdatedAt = now

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order) + 1, 0) FROM collections`).Scan(&col.SortOrder); err != nil {
		return Collection{}, err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO collections (`+collectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		col.ID, col.Name, col.Description, col.Color, col.IsDefault, col.SortOrder,
		toMillis(col.CreatedAt), toMillis(col.UpdatedAt))
	if err != nil {
		return Collection{}, err
	}
	return col, nil
}

// EnsureDefault returns the default collection for target, creating it on
// first use. Its name is the target itself.
func (s *CollectionStore) EnsureDefault(ctx context.Context, target string) (Collection, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Collection{}, apperr.NewValidation("target is required")
	}

	var out Collection
	err := s.m.runTx(ctx, "ensuring default collection", func(tx *sql.Tx) error {
		c, err := scanCollection(tx.QueryRowContext(ctx,
			`SELECT `+collectionColumns+` FROM collections WHERE is_default = 1 AND name = ?`, target))
		if isNoRows(err) {
			c, err = s.insertTx(ctx, tx, Collection{Name: target, IsDefault: true})
		}
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Collection{}, err
	}
	return out, nil
}

// Get returns the collection with the given ID.
func (s *CollectionStore) Get(ctx context.Context, id string) (Collection, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return Collection{}, err
	}
	c, err := scanCollection(db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id))
	if isNoRows(err) {
		return Collection{}, apperr.NewNotFound("collection", id)
	}
	if err != nil {
		return Collection{}, apperr.NewPersistence("reading collection", err)
	}
	return c, nil
}

// List returns every collection in display order.
func (s *CollectionStore) List(ctx context.Context) ([]Collection, error) {
	db, err := s.m.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections ORDER BY sort_order ASC, created_at ASC`)
	if err != nil {
		return nil, apperr.NewPersistence("listing collections", err)
	}
	defer rows.Close()

	out := []Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, apperr.NewPersistence("listing collections", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewPersistence("listing collections", err)
	}
	return out, nil
}

// Update merges p into the collection and refreshes updated_at. Default
// collections cannot be renamed. A SortOrder moves the collection to that
// position (clamped) and renumbers the rest so the order stays 0..n-1.
func (s *CollectionStore) Update(ctx context.Context, id string, p CollectionPatch) (Collection, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return Collection{}, apperr.NewValidation("collection name is required")
		}
		if len([]rune(name)) > maxCollectionName {
			return Collection{}, apperr.NewValidation("collection name must be at most %d characters", maxCollectionName)
		}
		p.Name = &name
	}

	var out Collection
	err := s.m.runTx(ctx, "updating collection", func(tx *sql.Tx) error {
		c, err := scanCollection(tx.QueryRowContext(ctx,
			`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id))
		if isNoRows(err) {
			return apperr.NewNotFound("collection", id)
		}
		if err != nil {
			return err
		}

		if p.Name != nil {
			if c.IsDefault && *p.Name != c.Name {
				return apperr.NewConflict("default collection %q cannot be renamed", c.Name)
			}
			c.Name = *p.Name
		}
		if p.Description != nil {
			c.Description = *p.Description
		}
		if p.Color != nil {
			c.Color = *p.Color
		}
		c.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

		if _, err := tx.ExecContext(ctx,
			`UPDATE collections SET name = ?, description = ?, color = ?, updated_at = ? WHERE id = ?`,
			c.Name, c.Description, c.Color, toMillis(c.UpdatedAt), id); err != nil {
			return err
		}

		if p.SortOrder != nil {
			ids, err := orderedIDs(ctx, tx)
			if err != nil {
				return err
			}
			ids = moveTo(ids, id, *p.SortOrder)
			if err := renumber(ctx, tx, ids, toMillis(c.UpdatedAt)); err != nil {
				return err
			}
			for i, other := range ids {
				if other == id {
					c.SortOrder = i
				}
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return Collection{}, err
	}
	return out, nil
}

// Delete removes a collection. With DeleteReject a collection that still
// holds saved prompts is refused with KindConflict; with DeleteCascade its
// prompts go with it. Deleting a missing ID is not an error.
func (s *CollectionStore) Delete(ctx context.Context, id string, policy DeletePolicy) error {
	return s.m.runTx(ctx, "deleting collection", func(tx *sql.Tx) error {
		var members int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM saved_prompts WHERE collection_id = ?`, id).Scan(&members); err != nil {
			return err
		}
		if members > 0 {
			if policy != DeleteCascade {
				return apperr.NewConflict("collection %s still holds %d saved prompts", id, members)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM saved_prompts WHERE collection_id = ?`, id); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
		return err
	})
}

// Reorder moves the listed collections to the front in the given order.
// Collections left out follow in their current order, so sort_order stays
// 0..n-1 without ties. Every listed ID must exist.
func (s *CollectionStore) Reorder(ctx context.Context, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return apperr.NewValidation("duplicate collection id %s", id)
		}
		seen[id] = true
	}

	now := toMillis(s.now().UTC())
	return s.m.runTx(ctx, "reordering collections", func(tx *sql.Tx) error {
		current, err := orderedIDs(ctx, tx)
		if err != nil {
			return err
		}
		exists := make(map[string]bool, len(current))
		for _, id := range current {
			exists[id] = true
		}
		for _, id := range ids {
			if !exists[id] {
				return apperr.NewNotFound("collection", id)
			}
		}

		order := make([]string, 0, len(current))
		order = append(order, ids...)
		for _, id := range current {
			if !seen[id] {
				order = append(order, id)
			}
		}
		return renumber(ctx, tx, order, now)
	})
}

// orderedIDs returns every collection ID in display order.
func orderedIDs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM collections ORDER BY sort_order ASC, created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// renumber writes sort_order = index for each ID, touching only rows whose
// position changed.
func renumber(ctx context.Context, tx *sql.Tx, ids []string, updatedAt int64) error {
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE collections SET sort_order = ?, updated_at = ? WHERE id = ? AND sort_order != ?`,
			i, updatedAt, id, i); err != nil {
			return err
		}
	}
	return nil
}

// moveTo returns ids with id placed at pos, clamped to the valid range.
func moveTo(ids []string, id string, pos int) []string {
	rest := make([]string, 0, len(ids))
	for _, other := range ids {
		if other != id {
			rest = append(rest, other)
		}
	}
	pos = max(0, min(pos, len(rest)))
	out := make([]string, 0, len(ids))
	out = append(out, rest[:pos]...)
	out = append(out, id)
	return append(out, rest[pos:]...)
}

func scanCollection(r rowScanner) (Collection, error) {
	var c Collection
	var created, updated int64
	if err := r.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &c.IsDefault, &c.SortOrder, &created, &updated); err != nil {
		return Collection{}, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}
