package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

type fixture struct {
	lib         *Library
	collections *storage.CollectionStore
	prompts     *storage.SavedPromptStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := storage.NewManager(storage.MemoryPath)
	t.Cleanup(func() { m.Close() })
	c := storage.NewCollectionStore(m)
	p := storage.NewSavedPromptStore(m)
	return fixture{lib: New(c, p), collections: c, prompts: p}
}

// TestSaveAndMoveWorkflow covers save into default -> save into explicit ->
// move -> delete with both policies.
func TestSaveAndMoveWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// 1. No collection given: the target's default is created.
	first, err := f.lib.SavePrompt(ctx, SavePromptInput{
		OriginalPrompt: "a cat",
		EnhancedPrompt: "A photorealistic cat",
		Target:         "image-generator",
	})
	require.NoError(t, err)

	def, err := f.collections.Get(ctx, first.CollectionID)
	require.NoError(t, err)
	require.True(t, def.IsDefault)
	require.Equal(t, "image-generator", def.Name)

	// 2. Same target again reuses the default.
	second, err := f.lib.SavePrompt(ctx, SavePromptInput{EnhancedPrompt: "A watercolor cat", Target: "image-generator"})
	require.NoError(t, err)
	require.Equal(t, def.ID, second.CollectionID)

	// 3. Explicit collection.
	favs, err := f.collections.Create(ctx, storage.NewCollection{Name: "Favourites"})
	require.NoError(t, err)
	third, err := f.lib.SavePrompt(ctx, SavePromptInput{EnhancedPrompt: "x", Target: "chatgpt", CollectionID: favs.ID})
	require.NoError(t, err)
	require.Equal(t, favs.ID, third.CollectionID)

	// 4. Move into favourites.
	moved, err := f.lib.MovePrompt(ctx, first.ID, favs.ID)
	require.NoError(t, err)
	require.Equal(t, favs.ID, moved.CollectionID)

	n, err := f.prompts.CountByCollection(ctx, favs.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// 5. Reject then cascade.
	err = f.collections.Delete(ctx, favs.ID, storage.DeleteReject)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.NoError(t, f.collections.Delete(ctx, favs.ID, storage.DeleteCascade))

	left, err := f.prompts.List(ctx, storage.SavedPromptFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, second.ID, left[0].ID)
}

func TestSavePrompt_UnknownCollection(t *testing.T) {
	f := newFixture(t)
	_, err := f.lib.SavePrompt(context.Background(), SavePromptInput{
		EnhancedPrompt: "x", Target: "general", CollectionID: "01HZZZZZZZZZZZZZZZZZZZZZZZ",
	})
	require.True(t, apperr.Is(err, apperr.KindNotFound), "err = %v", err)

	all, err := f.prompts.List(context.Background(), storage.SavedPromptFilter{})
	require.NoError(t, err)
	require.Empty(t, all, "nothing may be written for an unknown collection")
}

func TestSavePrompt_RequiresTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.lib.SavePrompt(context.Background(), SavePromptInput{EnhancedPrompt: "x"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMovePrompt_Validates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.lib.SavePrompt(ctx, SavePromptInput{EnhancedPrompt: "x", Target: "general"})
	require.NoError(t, err)

	_, err = f.lib.MovePrompt(ctx, p.ID, "")
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.lib.MovePrompt(ctx, p.ID, "missing")
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := f.prompts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.CollectionID, got.CollectionID)
}
