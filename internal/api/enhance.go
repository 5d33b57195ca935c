package api

import (
	"context"
	"net/http"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
	"github.com/LazyMisha/prmptlaba/internal/enhance"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

// EnhanceRequest is the body of POST /api/enhance.
type EnhanceRequest struct {
	Target      string `json:"target"`
	Prompt      string `json:"prompt"`
	SaveHistory bool   `json:"save_history,omitempty"`
}

// EnhanceResponse is the 200 body of POST /api/enhance.
type EnhanceResponse struct {
	Enhanced  string `json:"enhanced"`
	HistoryID string `json:"history_id,omitempty"`
}

func handleEnhance(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnhanceRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, deps.Logger, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), deps.RequestTimeout)
		defer cancel()

		enhanced, err := deps.Enhancer.Enhance(ctx, req.Target, req.Prompt)
		if err != nil {
			if apperr.Is(err, apperr.KindTimeout) {
				deps.Logger.Warn("enhancement timed out", "timeout", deps.RequestTimeout, "request_id", RequestIDFrom(r.Context()))
				httpError(w, http.StatusRequestTimeout, false,
					"the enhancement took longer than %s; please try again", deps.RequestTimeout)
				return
			}
			writeError(w, r, deps.Logger, err)
			return
		}

		resp := EnhanceResponse{Enhanced: enhanced}
		if req.SaveHistory && deps.History != nil {
			// The enhancement already succeeded; a history failure only loses the record.
			entry, err := deps.History.Save(r.Context(), storage.NewHistoryEntry{
				OriginalPrompt: req.Prompt,
				EnhancedPrompt: enhanced,
				Target:         req.Target,
			})
			if err != nil {
				deps.Logger.Warn("saving history entry", "error", err, "request_id", RequestIDFrom(r.Context()))
			} else {
				resp.HistoryID = entry.ID
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, enhance.Targets())
}
