package v1alpha1

// CaseRecord is a validated case-intake submission. Field-level business
// validation happens upstream in the intake layer; the tags here only guard
// the transport boundary against structurally broken payloads.
type CaseRecord struct {
	CaseNumber   string         `json:"caseNumber" validate:"required,case_number"`
	Title        string         `json:"title" validate:"required"`
	ClaimantName string         `json:"claimantName" validate:"required,person_name"`
	Jurisdiction string         `json:"jurisdiction,omitempty"`
	Documents    []CaseDocument `json:"documents,omitempty" validate:"dive"`
	Notes        string         `json:"notes,omitempty"`
}

// CaseDocument references one source document attached to a case.
type CaseDocument struct {
	Kind string `json:"kind" validate:"required,document_kind"`
	URI  string `json:"uri" validate:"required,uri"`
}

// SubmitReply is returned immediately after a submission is accepted; the
// job itself runs in the background.
type SubmitReply struct {
	JobID string `json:"jobId"`
}

// Error is the common error body.
type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"request_id,omitempty"`
}
