package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateReport appends one immutable report row. Reports are never updated.
func (r *ReportRepository) CreateReport(ctx context.Context, report *domain.ProcessingReport) error {
	stagesJSON, err := json.Marshal(report.StageResults)
	if err != nil {
		return fmt.Errorf("marshal stage results: %w", err)
	}
	errorsJSON, err := json.Marshal(report.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO processing_reports (
	id, model_id, started_at, completed_at, duration_seconds, ifc_schema,
	stage_results, errors, total_processed, total_failed,
	catastrophic_failure, failure_detail, summary
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		report.ID, report.ModelID, report.StartedAt, report.CompletedAt, report.DurationSeconds,
		report.Schema, stagesJSON, errorsJSON, report.TotalProcessed, report.TotalFailed,
		report.Catastrophic, report.FailureDetail, string(report.Summary),
	)
	if err != nil {
		return fmt.Errorf("insert processing report: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetReportByID(ctx context.Context, id string) (*domain.ProcessingReport, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, model_id, started_at, completed_at, duration_seconds, ifc_schema,
	stage_results, errors, total_processed, total_failed,
	catastrophic_failure, failure_detail, summary
FROM processing_reports
WHERE id = $1
`, id)

	var report domain.ProcessingReport
	var schema, failureDetail sql.NullString
	var summary string
	var stagesRaw, errorsRaw []byte

	err := row.Scan(
		&report.ID, &report.ModelID, &report.StartedAt, &report.CompletedAt, &report.DurationSeconds,
		&schema, &stagesRaw, &errorsRaw, &report.TotalProcessed, &report.TotalFailed,
		&report.Catastrophic, &failureDetail, &summary,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrModelNotFound, "get report", err)
		}
		return nil, fmt.Errorf("scan processing report: %w", err)
	}

	if err := json.Unmarshal(stagesRaw, &report.StageResults); err != nil {
		return nil, fmt.Errorf("unmarshal stage results: %w", err)
	}
	if err := json.Unmarshal(errorsRaw, &report.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	report.Schema = schema.String
	report.FailureDetail = failureDetail.String
	report.Summary = domain.ReportSummary(summary)
	return &report, nil
}
