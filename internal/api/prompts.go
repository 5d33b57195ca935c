package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LazyMisha/prmptlaba/internal/library"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

func handleListPrompts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		prompts, err := deps.Prompts.List(r.Context(), storage.SavedPromptFilter{
			CollectionID: q.Get("collection_id"),
			Target:       q.Get("target"),
		})
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if prompts == nil {
			prompts = []storage.SavedPrompt{}
		}
		writeJSON(w, http.StatusOK, prompts)
	}
}

func handleSavePrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req library.SavePromptInput
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		p, err := deps.Library.SavePrompt(r.Context(), req)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleGetPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Prompts.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpdatePrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch storage.SavedPromptPatch
		if err := decodeBody(w, r, &patch); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		p, err := deps.Library.UpdatePrompt(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleDeletePrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Prompts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
	}
}
