// Package library saves prompts into collections. The stores leave
// collection_id unchecked, so every write that sets it goes through here.
package library

import (
	"context"
	"strings"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

type Library struct {
	collections *storage.CollectionStore
	prompts     *storage.SavedPromptStore
}

func New(c *storage.CollectionStore, p *storage.SavedPromptStore) *Library {
	return &Library{collections: c, prompts: p}
}

// SavePromptInput is a prompt to keep. An empty CollectionID files it under
// the default collection for its target.
type SavePromptInput struct {
	OriginalPrompt string `json:"original_prompt"`
	EnhancedPrompt string `json:"enhanced_prompt"`
	Target         string `json:"target"`
	CollectionID   string `json:"collection_id,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// SavePrompt resolves the collection, creating the target's default when
// none is given, then stores the prompt. The insert re-checks the collection
// in its own transaction, so a collection deleted after resolution yields
// KindNotFound instead of an orphaned prompt.
func (l *Library) SavePrompt(ctx context.Context, in SavePromptInput) (storage.SavedPrompt, error) {
	if strings.TrimSpace(in.Target) == "" {
		return storage.SavedPrompt{}, apperr.NewValidation("target is required")
	}

	collectionID, err := l.resolve(ctx, in.CollectionID, in.Target)
	if err != nil {
		return storage.SavedPrompt{}, err
	}
	return l.prompts.SaveChecked(ctx, storage.NewSavedPrompt{
		OriginalPrompt: in.OriginalPrompt,
		EnhancedPrompt: in.EnhancedPrompt,
		Target:         in.Target,
		CollectionID:   collectionID,
		Notes:          in.Notes,
	})
}

// UpdatePrompt applies p, checking a new collection exists first.
func (l *Library) UpdatePrompt(ctx context.Context, id string, p storage.SavedPromptPatch) (storage.SavedPrompt, error) {
	if p.CollectionID != nil {
		if _, err := l.collections.Get(ctx, *p.CollectionID); err != nil {
			return storage.SavedPrompt{}, err
		}
	}
	return l.prompts.UpdateChecked(ctx, id, p)
}

// MovePrompt files an existing prompt under another collection.
func (l *Library) MovePrompt(ctx context.Context, promptID, collectionID string) (storage.SavedPrompt, error) {
	if strings.TrimSpace(collectionID) == "" {
		return storage.SavedPrompt{}, apperr.NewValidation("collection id is required")
	}
	return l.UpdatePrompt(ctx, promptID, storage.SavedPromptPatch{CollectionID: &collectionID})
}

func (l *Library) resolve(ctx context.Context, collectionID, target string) (string, error) {
	if collectionID == "" {
		c, err := l.collections.EnsureDefault(ctx, target)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}
	c, err := l.collections.Get(ctx, collectionID)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}
