package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"

	"github.com/caseflow/caseflow/internal/orchestrator"
)

// GetJob returns the current status snapshot for polling clients.
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	status, err := h.orchestrator.Status(jobID)
	if err != nil {
		var unknown *orchestrator.ErrUnknownJob
		if errors.As(err, &unknown) {
			renderError(w, r, http.StatusNotFound, err.Error())
			return
		}
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		return
	}

	render.JSON(w, r, status)
}

// StreamJob upgrades the request to a server-sent event session tailing the
// job until it finishes.
func (h *ServiceHandler) StreamJob(w http.ResponseWriter, r *http.Request) {
	h.streamServer.ServeJob(w, r, chi.URLParam(r, "id"))
}
