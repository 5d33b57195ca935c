package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

// ReorderRequest is the body of PUT /api/collections/order.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

func handleListCollections(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cols, err := deps.Collections.List(r.Context())
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if cols == nil {
			cols = []storage.Collection{}
		}
		writeJSON(w, http.StatusOK, cols)
	}
}

func handleCreateCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storage.NewCollection
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		col, err := deps.Collections.Create(r.Context(), req)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, col)
	}
}

func handleGetCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		col, err := deps.Collections.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, col)
	}
}

func handleUpdateCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch storage.CollectionPatch
		if err := decodeBody(w, r, &patch); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		col, err := deps.Collections.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, col)
	}
}

func handleDeleteCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policy := storage.DeleteReject
		if raw := r.URL.Query().Get("cascade"); raw != "" {
			cascade, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, r, deps.Logger, apperr.NewValidation("cascade must be true or false"))
				return
			}
			if cascade {
				policy = storage.DeleteCascade
			}
		}

		if err := deps.Collections.Delete(r.Context(), chi.URLParam(r, "id"), policy); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
	}
}

func handleReorderCollections(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReorderRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		if len(req.IDs) == 0 {
			writeError(w, r, deps.Logger, apperr.NewValidation("ids is required and must not be empty"))
			return
		}
		if err := deps.Collections.Reorder(r.Context(), req.IDs); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "reordered"})
	}
}
