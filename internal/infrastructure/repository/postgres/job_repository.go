package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

// JobRepository is the durable background-job table. The processing state
// doubles as the per-artifact lease: Acquire is a compare-and-swap that
// refuses to run two conflicting writers against the same artifact.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Acquire(ctx context.Context, modelID string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO processing_jobs (model_id, state, result, error_message, started_at, updated_at)
VALUES ($1, 'processing', NULL, '', $2, $2)
ON CONFLICT (model_id) DO UPDATE
SET state = 'processing', result = NULL, error_message = '', started_at = $2, updated_at = $2
WHERE processing_jobs.state <> 'processing'
`, modelID, now)
	if err != nil {
		return fmt.Errorf("acquire processing lease: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrConflict, "acquire processing lease", errors.New("attempt already in progress"))
	}
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, modelID string, result *domain.ProcessResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE processing_jobs
SET state = 'completed', result = $2, error_message = '', updated_at = $3
WHERE model_id = $1
`, modelID, resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (r *JobRepository) Fail(ctx context.Context, modelID string, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE processing_jobs
SET state = 'error', error_message = $2, updated_at = $3
WHERE model_id = $1
`, modelID, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, modelID string) (*domain.JobStatus, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT model_id, state, result, error_message, started_at, updated_at
FROM processing_jobs
WHERE model_id = $1
`, modelID)

	var job domain.JobStatus
	var state string
	var resultRaw []byte
	var errMessage sql.NullString

	err := row.Scan(&job.ModelID, &state, &resultRaw, &errMessage, &job.StartedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrModelNotFound, "get job", err)
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.State = domain.JobState(state)
	job.Error = errMessage.String
	if len(resultRaw) > 0 {
		var result domain.ProcessResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

// Clear removes a finished entry. In-flight entries are protected: clearing
// one would release a lease that is still held.
func (r *JobRepository) Clear(ctx context.Context, modelID string) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM processing_jobs
WHERE model_id = $1 AND state IN ('completed', 'error')
`, modelID)
	if err != nil {
		return fmt.Errorf("clear job: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		if _, getErr := r.Get(ctx, modelID); getErr == nil {
			return domain.WrapError(domain.ErrConflict, "clear job", errors.New("job still processing"))
		}
		return domain.WrapError(domain.ErrModelNotFound, "clear job", sql.ErrNoRows)
	}
	return nil
}
