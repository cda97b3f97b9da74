package findings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ops-tools/remedia/pkg/services/orchestrator"
	"github.com/ops-tools/remedia/pkg/store/tickets"
)

type Handler struct {
	orchestrator *orchestrator.Orchestrator
}

func NewHandler(o *orchestrator.Orchestrator) *Handler {
	return &Handler{orchestrator: o}
}

type batchRequest struct {
	Findings []json.RawMessage `json:"findings"`
}

// ProcessBatch accepts a batch of raw finding payloads and runs them through
// the orchestrator. Per-finding failures land in the summary; only a fatal
// ticket store failure produces a 500.
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Findings) == 0 {
		http.Error(w, "no findings in batch", http.StatusBadRequest)
		return
	}

	summary, err := h.orchestrator.ProcessBatch(r.Context(), req.Findings)
	if err != nil {
		var fatal *tickets.FatalConfigurationError
		if errors.As(err, &fatal) {
			logger.Error().Err(err).Msg("batch aborted")
			http.Error(w, "ticket store misconfigured", http.StatusInternalServerError)
			return
		}
		logger.Error().Err(err).Msg("batch processing failed")
		http.Error(w, "batch processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.Error().Err(err).Msg("failed to encode batch summary")
	}
}
