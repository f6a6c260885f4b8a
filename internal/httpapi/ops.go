package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"urgify-core/internal/application"
	"urgify-core/internal/domain"
	"urgify-core/internal/ports"
)

// OpsHandler serves the embedded dashboard's operator endpoints: dead-letter
// inspection and replay, plus the compliance audit trail. All routes sit
// behind session-token auth.
type OpsHandler struct {
	replayer *application.Replayer
	gdpr     ports.GdprStore
	logger   zerolog.Logger
}

// NewOpsHandler creates a new ops API handler
func NewOpsHandler(replayer *application.Replayer, gdpr ports.GdprStore, logger zerolog.Logger) *OpsHandler {
	return &OpsHandler{replayer: replayer, gdpr: gdpr, logger: logger}
}

// ListDeadLetters returns the unresolved dead letters eligible for replay.
func (h *OpsHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	maxRetries := application.DefaultMaxReplayRetries
	if raw := r.URL.Query().Get("max_retries"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxRetries = n
		}
	}
	records, err := h.replayer.List(r.Context(), maxRetries)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list dead letters")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list dead letters"})
		return
	}
	if records == nil {
		records = []domain.DeadLetterRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": records})
}

// ReplayDeadLetter re-runs one dead letter synchronously.
func (h *OpsHandler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.replayer.Replay(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "dead letter not found"})
		return
	}
	if err != nil {
		// The replay failed the same way the original delivery did; the
		// attempt is already recorded on the row.
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ReplayBatch re-runs every eligible dead letter and reports the counts.
func (h *OpsHandler) ReplayBatch(w http.ResponseWriter, r *http.Request) {
	succeeded, failed, err := h.replayer.ReplayBatch(r.Context(), application.DefaultMaxReplayRetries)
	if err != nil {
		h.logger.Error().Err(err).Msg("Dead-letter batch replay failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "batch replay failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"succeeded": succeeded, "failed": failed})
}

// ListGdprRequests returns the compliance audit rows for a shop.
func (h *OpsHandler) ListGdprRequests(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	if shop == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "shop query parameter is required"})
		return
	}
	requests, err := h.gdpr.ListByShop(r.Context(), shop)
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Msg("Failed to list gdpr requests")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list gdpr requests"})
		return
	}
	if requests == nil {
		requests = []domain.GdprRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"gdpr_requests": requests})
}
