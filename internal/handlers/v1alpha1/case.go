package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	api "github.com/caseflow/caseflow/api/v1alpha1"
	"github.com/caseflow/caseflow/pkg/requestid"
)

// SubmitCase accepts a case record, validates it, and kicks off background
// document generation. The reply carries only the job id; progress is
// available on the job endpoints.
func (h *ServiceHandler) SubmitCase(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("case_handler").With("request_id", requestid.FromRequest(r))

	var record api.CaseRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode case record: %v", err))
		return
	}

	if err := h.validator.Struct(record); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid case record: field %s failed on %s", fieldErrors[0].Field(), fieldErrors[0].Tag()))
			return
		}
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid case record: %v", err))
		return
	}

	jobID, err := h.orchestrator.Submit(r.Context(), record)
	if err != nil {
		logger.Errorw("failed to submit case", "error", err)
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to submit case: %v", err))
		return
	}

	logger.Infow("case submitted", "job_id", jobID, "case_number", record.CaseNumber)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, api.SubmitReply{JobID: jobID})
}
