package usecase

import (
	"time"

	"github.com/google/uuid"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

// buildReport produces the immutable audit record for one attempt. Exactly
// one report exists per attempt regardless of outcome.
func buildReport(modelID string, started, completed time.Time, out attemptOutcome) *domain.ProcessingReport {
	totalProcessed := 0
	totalFailed := 0
	succeededStages := 0
	for _, stage := range out.stages {
		totalProcessed += stage.Written
		totalFailed += stage.Skipped
		if stage.Error == "" {
			succeededStages++
		}
	}

	report := &domain.ProcessingReport{
		ID:              uuid.NewString(),
		ModelID:         modelID,
		StartedAt:       started,
		CompletedAt:     completed,
		DurationSeconds: completed.Sub(started).Seconds(),
		Schema:          out.schema,
		StageResults:    out.stages,
		Errors:          out.errs,
		TotalProcessed:  totalProcessed,
		TotalFailed:     totalFailed,
		Catastrophic:    out.catastrophic,
		FailureDetail:   out.failureDetail,
		Summary:         classifyOutcome(out, succeededStages),
	}
	if report.StageResults == nil {
		report.StageResults = []domain.StageResult{}
	}
	if report.Errors == nil {
		report.Errors = []string{}
	}
	return report
}

func classifyOutcome(out attemptOutcome, succeededStages int) domain.ReportSummary {
	switch {
	case out.catastrophic:
		return domain.ReportFailed
	case len(out.errs) == 0 && out.success:
		return domain.ReportSuccess
	case succeededStages == 0:
		return domain.ReportFailed
	default:
		return domain.ReportPartial
	}
}
