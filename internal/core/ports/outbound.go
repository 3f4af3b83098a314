package ports

import (
	"context"
	"io"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

// SourceFetcher retrieves the raw model file from a URL or local path.
type SourceFetcher interface {
	Fetch(ctx context.Context, source string) (io.ReadCloser, error)
}

// ModelParser turns a raw model file into disjoint GUID-keyed collections.
// Implementations own the file-format details; the pipeline only sees the
// ParseResult contract.
type ModelParser interface {
	Parse(ctx context.Context, r io.Reader, skipGeometry bool) (*domain.ParseResult, error)
}

// QuickScanner produces fast summary statistics in a single streaming pass.
type QuickScanner interface {
	QuickScan(ctx context.Context, r io.Reader) (domain.QuickStats, error)
}

// ModelStore persists the artifact row and its lifecycle status.
type ModelStore interface {
	Create(ctx context.Context, m *domain.Model) error
	GetByID(ctx context.Context, id string) (*domain.Model, error)
	UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, errMessage string) error
	SaveCounts(ctx context.Context, id string, schema string, counts domain.ModelCounts) error
}

// BulkWriter performs the batched insert for one record collection and
// returns the GUID to surrogate-key entries it produced, so the orchestrator
// can merge them before the next stage.
type BulkWriter interface {
	WriteSpatialNodes(ctx context.Context, modelID string, nodes []domain.ResolvedSpatialNode) (map[string]int64, error)
	WriteMaterials(ctx context.Context, modelID string, materials []domain.MaterialRecord) (map[string]int64, error)
	WriteTypes(ctx context.Context, modelID string, types []domain.TypeRecord) (map[string]int64, error)
	WriteSystems(ctx context.Context, modelID string, systems []domain.SystemRecord) (map[string]int64, error)
	WriteElements(ctx context.Context, modelID string, elements []domain.ResolvedEntity) (map[string]int64, error)
	WriteTypeAssignments(ctx context.Context, modelID string, assignments []domain.ResolvedTypeAssignment) (int, error)
	WriteMaterialAssignments(ctx context.Context, modelID string, assignments []domain.ResolvedMaterialAssignment) (int, error)
	WriteProperties(ctx context.Context, modelID string, properties []domain.ResolvedProperty) (int, error)
}

// PurgeStore deletes every persisted row belonging to one artifact.
type PurgeStore interface {
	PurgeModelData(ctx context.Context, modelID string) error
}

// ReportStore persists the append-only processing reports.
type ReportStore interface {
	CreateReport(ctx context.Context, report *domain.ProcessingReport) error
	GetReportByID(ctx context.Context, id string) (*domain.ProcessingReport, error)
}

// JobStore tracks in-flight background attempts. Acquire is the per-artifact
// lease: it fails with ErrConflict while another attempt holds the
// processing state.
type JobStore interface {
	Acquire(ctx context.Context, modelID string) error
	Complete(ctx context.Context, modelID string, result *domain.ProcessResult) error
	Fail(ctx context.Context, modelID string, errMessage string) error
	Get(ctx context.Context, modelID string) (*domain.JobStatus, error)
	Clear(ctx context.Context, modelID string) error
}

// CallbackNotifier delivers the completion payload. Best effort: one
// attempt, bounded timeout, never retried.
type CallbackNotifier interface {
	Notify(ctx context.Context, target string, payload domain.CallbackPayload) error
}

// MessageQueue publishes/consumes background processing jobs.
type MessageQueue interface {
	PublishProcessJob(ctx context.Context, job domain.ProcessJob) error
	SubscribeProcessJobs(ctx context.Context, handler func(context.Context, domain.ProcessJob) error) error
}

// ObjectStorage stores uploaded model files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
