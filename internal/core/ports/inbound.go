package ports

import (
	"context"
	"io"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

// ModelIngestor is the inbound contract for model upload.
type ModelIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Model, error)
}

// ModelProcessor is the inbound contract for the fast-ack entry point:
// return quick statistics immediately, finish the pipeline in background.
type ModelProcessor interface {
	Process(ctx context.Context, modelID, source string, opts domain.ProcessOptions) (domain.QuickStats, error)
}

// SyncProcessor runs the full pipeline to completion before returning.
type SyncProcessor interface {
	ProcessSync(ctx context.Context, modelID, source string, opts domain.ProcessOptions) domain.ProcessResult
}

// Reprocessor purges previously written rows and runs the pipeline again.
type Reprocessor interface {
	Reprocess(ctx context.Context, modelID, source string, opts domain.ProcessOptions) (domain.ProcessResult, error)
}

// JobReader exposes background-job status for polling clients.
type JobReader interface {
	GetStatus(ctx context.Context, modelID string) (*domain.JobStatus, error)
	ClearStatus(ctx context.Context, modelID string) error
}

// ModelReader is the inbound read model for artifact metadata/state.
type ModelReader interface {
	GetByID(ctx context.Context, id string) (*domain.Model, error)
}
