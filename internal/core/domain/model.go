package domain

import "time"

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusParsing    ProcessingStatus = "parsing"
	StatusProcessing ProcessingStatus = "processing"
	StatusReady      ProcessingStatus = "ready"
	StatusError      ProcessingStatus = "error"
)

// Model is the artifact row tracked per ingested building-model file.
type Model struct {
	ID         string           `json:"id"`
	Filename   string           `json:"filename"`
	SourcePath string           `json:"source_path"`
	Schema     string           `json:"schema,omitempty"`
	Status     ProcessingStatus `json:"status"`
	Error      string           `json:"error,omitempty"`

	ElementCount  int `json:"element_count"`
	StoreyCount   int `json:"storey_count"`
	SystemCount   int `json:"system_count"`
	PropertyCount int `json:"property_count"`
	MaterialCount int `json:"material_count"`
	TypeCount     int `json:"type_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModelCounts carries the aggregate counts written back onto the model row
// after a successful pipeline run.
type ModelCounts struct {
	Elements   int
	Storeys    int
	Systems    int
	Properties int
	Materials  int
	Types      int
}
