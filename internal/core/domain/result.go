package domain

import "time"

// StageResult is the per-collection outcome of one pipeline stage.
type StageResult struct {
	Name       string  `json:"name"`
	Written    int     `json:"written"`
	Unresolved int     `json:"unresolved,omitempty"`
	Skipped    int     `json:"skipped,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// ProcessResult is the synchronous pipeline outcome returned to callers and
// mirrored into the completion callback payload.
type ProcessResult struct {
	Success bool             `json:"success"`
	Status  ProcessingStatus `json:"status"`

	ElementCount  int `json:"element_count"`
	StoreyCount   int `json:"storey_count"`
	SystemCount   int `json:"system_count"`
	PropertyCount int `json:"property_count"`
	MaterialCount int `json:"material_count"`
	TypeCount     int `json:"type_count"`

	Schema          string        `json:"schema,omitempty"`
	ReportID        string        `json:"report_id,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
	Error           string        `json:"error,omitempty"`
	StageResults    []StageResult `json:"stage_results"`
	Errors          []string      `json:"errors"`
}

// QuickStats is the fast-ack pre-scan summary returned before background
// completion.
type QuickStats struct {
	Success       bool         `json:"success"`
	Schema        string       `json:"schema,omitempty"`
	TotalElements int          `json:"total_elements"`
	StoreyCount   int          `json:"storey_count"`
	TypeCount     int          `json:"type_count"`
	MaterialCount int          `json:"material_count"`
	TopClasses    []ClassCount `json:"top_classes"`
	DurationMS    float64      `json:"duration_ms"`
	Error         string       `json:"error,omitempty"`
}

type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// ReportSummary classifies the overall outcome of one attempt.
type ReportSummary string

const (
	ReportSuccess ReportSummary = "success"
	ReportPartial ReportSummary = "partial"
	ReportFailed  ReportSummary = "failed"
)

// ProcessingReport is the immutable audit record; exactly one exists per
// attempt and it is never mutated after creation.
type ProcessingReport struct {
	ID              string        `json:"id"`
	ModelID         string        `json:"model_id"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
	DurationSeconds float64       `json:"duration_seconds"`
	Schema          string        `json:"schema,omitempty"`
	StageResults    []StageResult `json:"stage_results"`
	Errors          []string      `json:"errors"`
	TotalProcessed  int           `json:"total_processed"`
	TotalFailed     int           `json:"total_failed"`
	Catastrophic    bool          `json:"catastrophic_failure"`
	FailureDetail   string        `json:"failure_detail,omitempty"`
	Summary         ReportSummary `json:"summary"`
}

// CallbackPayload mirrors ProcessResult plus the artifact id.
type CallbackPayload struct {
	ModelID string `json:"model_id"`
	ProcessResult
}

type JobState string

const (
	JobNotFound   JobState = "not_found"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobError      JobState = "error"
)

// JobStatus is the durable background-job row polled by callers. Completed
// and error entries persist until explicitly cleared.
type JobStatus struct {
	ModelID   string         `json:"model_id"`
	State     JobState       `json:"state"`
	Result    *ProcessResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ProcessOptions controls one pipeline attempt.
type ProcessOptions struct {
	SkipGeometry bool
	CallbackURL  string
}
