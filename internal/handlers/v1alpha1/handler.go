package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/caseflow/caseflow/api/v1alpha1"
	"github.com/caseflow/caseflow/internal/handlers/validator"
	"github.com/caseflow/caseflow/internal/orchestrator"
	"github.com/caseflow/caseflow/internal/stream"
	"github.com/caseflow/caseflow/pkg/requestid"
)

// ServiceHandler wires the HTTP surface to the orchestrator and the
// progress stream server.
type ServiceHandler struct {
	orchestrator *orchestrator.Orchestrator
	streamServer *stream.Server
	validator    *validator.Validator
}

func NewServiceHandler(o *orchestrator.Orchestrator, s *stream.Server) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewCaseRecordValidationRules()...)

	return &ServiceHandler{
		orchestrator: o,
		streamServer: s,
		validator:    v,
	}
}

func renderError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, api.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())})
}
