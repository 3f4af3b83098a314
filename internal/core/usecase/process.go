package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/modelvault/model-ingest/internal/core/domain"
	"github.com/modelvault/model-ingest/internal/core/ports"
	"github.com/modelvault/model-ingest/internal/observability/metrics"
)

// ProcessModelUseCase drives one full pipeline attempt: status transitions,
// parse, ordered resolve/write stages, aggregate counts, report, callback.
type ProcessModelUseCase struct {
	models   ports.ModelStore
	writer   ports.BulkWriter
	reports  ports.ReportStore
	jobs     ports.JobStore
	fetcher  ports.SourceFetcher
	parser   ports.ModelParser
	notifier ports.CallbackNotifier

	service string
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

func NewProcessModelUseCase(
	models ports.ModelStore,
	writer ports.BulkWriter,
	reports ports.ReportStore,
	jobs ports.JobStore,
	fetcher ports.SourceFetcher,
	parser ports.ModelParser,
	notifier ports.CallbackNotifier,
	opts ...ProcessOption,
) *ProcessModelUseCase {
	uc := &ProcessModelUseCase{
		models:   models,
		writer:   writer,
		reports:  reports,
		jobs:     jobs,
		fetcher:  fetcher,
		parser:   parser,
		notifier: notifier,
		service:  "model-ingest",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type ProcessOption func(*ProcessModelUseCase)

func WithPipelineMetrics(service string, m *metrics.PipelineMetrics) ProcessOption {
	return func(uc *ProcessModelUseCase) {
		uc.service = service
		uc.metrics = m
	}
}

func WithLogger(logger *slog.Logger) ProcessOption {
	return func(uc *ProcessModelUseCase) {
		uc.logger = logger
	}
}

// attemptOutcome is the internal result of one guarded pipeline run.
type attemptOutcome struct {
	schema        string
	stages        []domain.StageResult
	errs          []string
	counts        domain.ModelCounts
	success       bool
	catastrophic  bool
	failureDetail string
}

// ProcessSync runs the pipeline to completion. The returned ProcessResult
// always describes the attempt, including input rejection and catastrophic
// failure; it never panics through to the caller.
func (uc *ProcessModelUseCase) ProcessSync(ctx context.Context, modelID, source string, opts domain.ProcessOptions) domain.ProcessResult {
	started := time.Now().UTC()

	// Input errors reject before the pipeline starts: no report, no status
	// transition, no job entry.
	src, err := uc.fetcher.Fetch(ctx, source)
	if err != nil {
		return domain.ProcessResult{
			Status:          domain.StatusError,
			Error:           domain.WrapError(domain.ErrSourceUnavailable, "fetch source", err).Error(),
			Errors:          []string{err.Error()},
			StageResults:    []domain.StageResult{},
			DurationSeconds: time.Since(started).Seconds(),
		}
	}

	// Per-artifact lease: at most one writer per model id at a time.
	if err := uc.jobs.Acquire(ctx, modelID); err != nil {
		_ = src.Close()
		return domain.ProcessResult{
			Status:          domain.StatusError,
			Error:           err.Error(),
			Errors:          []string{err.Error()},
			StageResults:    []domain.StageResult{},
			DurationSeconds: time.Since(started).Seconds(),
		}
	}

	uc.metrics.StartAttempt()
	outcome := uc.runAttempt(ctx, modelID, src, opts)
	completed := time.Now().UTC()
	uc.metrics.FinishAttempt(uc.service, completed.Sub(started), outcome.success)

	result := resultFromOutcome(outcome, completed.Sub(started))

	report := buildReport(modelID, started, completed, outcome)
	uc.persistReport(ctx, report)
	result.ReportID = report.ID

	uc.finalizeJob(ctx, modelID, &result)

	if opts.CallbackURL != "" {
		uc.deliverCallback(ctx, modelID, opts.CallbackURL, result)
	}

	return result
}

// runAttempt executes parse and all write stages. Panics anywhere inside
// are recovered here and surface as a catastrophic failure; the caller still
// finalizes status, report and callback.
func (uc *ProcessModelUseCase) runAttempt(ctx context.Context, modelID string, src io.ReadCloser, opts domain.ProcessOptions) (out attemptOutcome) {
	defer func() {
		_ = src.Close()
		if r := recover(); r != nil {
			out.success = false
			out.catastrophic = true
			out.failureDetail = fmt.Sprintf("panic: %v", r)
			out.errs = append(out.errs, out.failureDetail)
			uc.logger.Error("pipeline_panic", "model_id", modelID, "detail", out.failureDetail)
			uc.setStatus(ctx, modelID, domain.StatusError, out.failureDetail)
		}
	}()

	uc.setStatus(ctx, modelID, domain.StatusParsing, "")

	parsed, err := uc.parser.Parse(ctx, src, opts.SkipGeometry)
	if err != nil {
		out.errs = append(out.errs, fmt.Sprintf("parse: %v", err))
		uc.setStatus(ctx, modelID, domain.StatusError, err.Error())
		return out
	}
	out.schema = parsed.Schema

	uc.setStatus(ctx, modelID, domain.StatusProcessing, "")

	st := &pipelineState{
		modelID: modelID,
		parsed:  parsed,
		idx:     guidIndex{},
	}

	for _, spec := range stagePlan() {
		stageResult, stageErr := runStage(ctx, spec, uc.writer, st)
		out.stages = append(out.stages, stageResult)
		uc.metrics.ObserveStage(
			uc.service,
			spec.name,
			time.Duration(stageResult.DurationMS*float64(time.Millisecond)),
			stageResult.Written,
			stageResult.Unresolved+stageResult.Skipped,
		)
		if stageErr != nil {
			// Dependents of a failed stage cannot resolve their foreign
			// keys; abort the remaining stages.
			out.errs = append(out.errs, stageErr.Error())
			uc.logger.Error("stage_failed", "model_id", modelID, "stage", spec.name, "error", stageErr)
			uc.setStatus(ctx, modelID, domain.StatusError, stageErr.Error())
			return out
		}
	}

	out.counts = st.counts
	if err := uc.models.SaveCounts(ctx, modelID, out.schema, st.counts); err != nil {
		out.errs = append(out.errs, fmt.Sprintf("save counts: %v", err))
		uc.setStatus(ctx, modelID, domain.StatusError, err.Error())
		return out
	}

	uc.setStatus(ctx, modelID, domain.StatusReady, "")
	out.success = true
	return out
}

func (uc *ProcessModelUseCase) setStatus(ctx context.Context, modelID string, status domain.ProcessingStatus, errMessage string) {
	if err := uc.models.UpdateStatus(ctx, modelID, status, errMessage); err != nil {
		uc.logger.Error("status_update_failed", "model_id", modelID, "status", string(status), "error", err)
	}
}

// persistReport is wrapped in its own failure handler: a reporting bug must
// never prevent the attempt from returning a result.
func (uc *ProcessModelUseCase) persistReport(ctx context.Context, report *domain.ProcessingReport) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("report_persist_panic", "model_id", report.ModelID, "detail", fmt.Sprintf("%v", r))
		}
	}()
	if err := uc.reports.CreateReport(ctx, report); err != nil {
		uc.logger.Error("report_persist_failed", "model_id", report.ModelID, "report_id", report.ID, "error", err)
	}
}

func (uc *ProcessModelUseCase) finalizeJob(ctx context.Context, modelID string, result *domain.ProcessResult) {
	var err error
	if result.Success {
		err = uc.jobs.Complete(ctx, modelID, result)
	} else {
		err = uc.jobs.Fail(ctx, modelID, result.Error)
	}
	if err != nil {
		uc.logger.Error("job_finalize_failed", "model_id", modelID, "error", err)
	}
}

// deliverCallback is fire and forget: a failed delivery is logged and never
// escalates. Polling the job status is the authoritative channel.
func (uc *ProcessModelUseCase) deliverCallback(ctx context.Context, modelID, target string, result domain.ProcessResult) {
	err := uc.notifier.Notify(ctx, target, domain.CallbackPayload{
		ModelID:       modelID,
		ProcessResult: result,
	})
	uc.metrics.ObserveCallback(uc.service, err)
	if err != nil {
		uc.logger.Warn("callback_failed", "model_id", modelID, "target", target, "error", err)
	}
}

func resultFromOutcome(out attemptOutcome, duration time.Duration) domain.ProcessResult {
	status := domain.StatusReady
	if !out.success {
		status = domain.StatusError
	}

	result := domain.ProcessResult{
		Success:         out.success,
		Status:          status,
		ElementCount:    out.counts.Elements,
		StoreyCount:     out.counts.Storeys,
		SystemCount:     out.counts.Systems,
		PropertyCount:   out.counts.Properties,
		MaterialCount:   out.counts.Materials,
		TypeCount:       out.counts.Types,
		Schema:          out.schema,
		DurationSeconds: duration.Seconds(),
		StageResults:    out.stages,
		Errors:          out.errs,
	}
	if result.StageResults == nil {
		result.StageResults = []domain.StageResult{}
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	if !out.success {
		if out.failureDetail != "" {
			result.Error = out.failureDetail
		} else if len(out.errs) > 0 {
			result.Error = out.errs[0]
		}
	}
	return result
}
