package domain

import "time"

type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

type ReviewStatus string

const (
	ReviewNeedsReview ReviewStatus = "needs_review"
	ReviewAccepted    ReviewStatus = "accepted"
	ReviewEdited      ReviewStatus = "edited"
)

// FailureReason explains why a field was routed to needs_review or failed
// instead of being auto-filled.
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonNoEvidence           FailureReason = "no_evidence"
	ReasonLowConfidence        FailureReason = "low_confidence"
	ReasonTimeout              FailureReason = "timeout"
	ReasonRetrievalUnavailable FailureReason = "retrieval_unavailable"
	ReasonMalformedField       FailureReason = "malformed_field"
)

// FieldState is the per-field pipeline stage. Stages advance strictly in
// order and are never reentered.
type FieldState string

const (
	FieldPending   FieldState = "pending"
	FieldMapped    FieldState = "mapped"
	FieldRetrieved FieldState = "retrieved"
	FieldEvidenced FieldState = "evidenced"
	FieldScored    FieldState = "scored"
	FieldRecorded  FieldState = "recorded"
	FieldFailed    FieldState = "failed"
)

type Run struct {
	ID                  string    `json:"id"`
	SiteID              string    `json:"site_id"`
	TemplateID          string    `json:"template_id"`
	Status              RunStatus `json:"status"`
	AutofillPercentage  float64   `json:"autofill_percentage"`
	ReviewTimeMinutes   float64   `json:"review_time_minutes"`
	CycleTimeDeltaWeeks float64   `json:"cycle_time_delta_weeks"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at,omitzero"`
}

// EvidenceLink cites where an answer value was sourced: file, page and the
// character span inside the chunk text on that page.
type EvidenceLink struct {
	FileID    string `json:"file_id"`
	Page      int    `json:"page"`
	SpanStart int    `json:"span_start"`
	SpanEnd   int    `json:"span_end"`
}

type Answer struct {
	RunID            string         `json:"run_id"`
	FieldID          string         `json:"field_id"`
	Position         int            `json:"position"`
	FieldLabel       string         `json:"field_label"`
	Value            string         `json:"value"`
	Confidence       float64        `json:"confidence"`
	EvidenceLinks    []EvidenceLink `json:"evidence_links"`
	ReviewStatus     ReviewStatus   `json:"review_status"`
	FailureReason    FailureReason  `json:"failure_reason,omitempty"`
	ReviewerComments string         `json:"reviewer_comments,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// AnswerEdit is a reviewer's change to one answer. Value and Comments
// apply only when non-nil so a status flip alone leaves them untouched.
type AnswerEdit struct {
	ReviewStatus ReviewStatus `json:"review_status"`
	Value        *string      `json:"value,omitempty"`
	Comments     *string      `json:"comments,omitempty"`
}

// SiteMetrics aggregates completed runs for a site.
type SiteMetrics struct {
	SiteID                 string  `json:"site_id"`
	CompletedRuns          int     `json:"completed_runs"`
	AvgAutofillPercentage  float64 `json:"avg_autofill_percentage"`
	AvgReviewTimeMinutes   float64 `json:"avg_review_time_minutes"`
	AvgCycleTimeDeltaWeeks float64 `json:"avg_cycle_time_delta_weeks"`
}
