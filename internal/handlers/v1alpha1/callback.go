package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/docgen"
	"github.com/caseflow/caseflow/internal/orchestrator"
	"github.com/caseflow/caseflow/pkg/requestid"
)

// DocgenCallback receives progress webhooks from the generation service.
// Deliveries for unknown or already-finished jobs are acknowledged anyway:
// the service retries callbacks on non-2xx replies, and a late duplicate
// must not trigger a retry storm.
func (h *ServiceHandler) DocgenCallback(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("callback_handler").With("request_id", requestid.FromRequest(r))

	var payload docgen.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode callback: %v", err))
		return
	}

	if err := h.orchestrator.HandleCallback(payload); err != nil {
		var invalid *orchestrator.ErrInvalidCallback
		if errors.As(err, &invalid) {
			logger.Warnw("rejected callback", "error", err)
			renderError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var unknown *orchestrator.ErrUnknownJob
		if errors.As(err, &unknown) {
			logger.Infow("acknowledged late callback", "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to handle callback: %v", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
