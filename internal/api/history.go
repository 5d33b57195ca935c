package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LazyMisha/prmptlaba/internal/storage"
)

func handleListHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", deps.History.Limit(), deps.History.Limit())
		offset := parseIntParam(r, "offset", 0, 0)

		entries, err := deps.History.List(r.Context(), limit, offset)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if entries == nil {
			entries = []storage.HistoryEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleSaveHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storage.NewHistoryEntry
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		entry, err := deps.History.Save(r.Context(), req)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func handleGetHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := deps.History.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleDeleteHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
	}
}

func handleClearHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Clear(r.Context()); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "cleared"})
	}
}
