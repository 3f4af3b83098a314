package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/modelvault/model-ingest/internal/core/domain"
	"github.com/modelvault/model-ingest/internal/core/ports"
)

// DispatchUseCase implements the two-phase execution contract: a bounded
// quick scan answered immediately, with the full pipeline finished by a
// detached background task (in-process pool) or a queue worker.
type DispatchUseCase struct {
	processor ports.SyncProcessor
	fetcher   ports.SourceFetcher
	scanner   ports.QuickScanner
	jobs      ports.JobStore
	queue     ports.MessageQueue

	scanTimeout time.Duration
	sem         chan struct{}
	wg          sync.WaitGroup
	logger      *slog.Logger
}

func NewDispatchUseCase(
	processor ports.SyncProcessor,
	fetcher ports.SourceFetcher,
	scanner ports.QuickScanner,
	jobs ports.JobStore,
	queue ports.MessageQueue,
	scanTimeout time.Duration,
	poolSize int,
	logger *slog.Logger,
) *DispatchUseCase {
	if scanTimeout <= 0 {
		scanTimeout = time.Second
	}
	if poolSize <= 0 {
		poolSize = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchUseCase{
		processor:   processor,
		fetcher:     fetcher,
		scanner:     scanner,
		jobs:        jobs,
		queue:       queue,
		scanTimeout: scanTimeout,
		sem:         make(chan struct{}, poolSize),
		logger:      logger,
	}
}

// Process is the fast-ack entry point. It always returns a QuickStats
// response, even one describing failure; the full pipeline is only scheduled
// when the source is readable and no other attempt holds the lease.
func (uc *DispatchUseCase) Process(ctx context.Context, modelID, source string, opts domain.ProcessOptions) (domain.QuickStats, error) {
	started := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, uc.scanTimeout)
	defer cancel()

	src, err := uc.fetcher.Fetch(scanCtx, source)
	if err != nil {
		return domain.QuickStats{
			Error:      err.Error(),
			DurationMS: durationMS(started),
		}, domain.WrapError(domain.ErrSourceUnavailable, "fetch source", err)
	}

	stats, err := uc.scanner.QuickScan(scanCtx, src)
	_ = src.Close()
	stats.DurationMS = durationMS(started)
	if err != nil {
		stats.Success = false
		stats.Error = err.Error()
		return stats, domain.WrapError(domain.ErrInvalidInput, "quick scan", err)
	}

	// Advisory pre-check; the authoritative lease is taken by the pipeline
	// itself before any row is written.
	if job, jobErr := uc.jobs.Get(ctx, modelID); jobErr == nil && job.State == domain.JobProcessing {
		return stats, domain.WrapError(domain.ErrConflict, "schedule background pipeline", errors.New("a previous attempt is still processing"))
	}

	if uc.queue != nil {
		job := domain.ProcessJob{
			ModelID:      modelID,
			Source:       source,
			SkipGeometry: opts.SkipGeometry,
			CallbackURL:  opts.CallbackURL,
			EnqueuedAt:   time.Now().UTC(),
		}
		if err := uc.queue.PublishProcessJob(ctx, job); err != nil {
			return stats, err
		}
		return stats, nil
	}

	uc.spawn(ctx, modelID, source, opts)
	return stats, nil
}

// spawn hands the pipeline to the bounded in-process pool. Once dispatched
// the attempt runs to completion; there is no cancellation signal, so the
// background context deliberately outlives the request.
func (uc *DispatchUseCase) spawn(ctx context.Context, modelID, source string, opts domain.ProcessOptions) {
	bg := context.WithoutCancel(ctx)
	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		uc.sem <- struct{}{}
		defer func() { <-uc.sem }()

		result := uc.processor.ProcessSync(bg, modelID, source, opts)
		if !result.Success {
			uc.logger.Warn("background_pipeline_failed", "model_id", modelID, "error", result.Error)
		}
	}()
}

// Wait blocks until all in-flight background attempts have finished; used
// on shutdown.
func (uc *DispatchUseCase) Wait() {
	uc.wg.Wait()
}

// GetStatus reads the durable job table. It always yields a defined state;
// an unknown model id maps to not_found rather than an error.
func (uc *DispatchUseCase) GetStatus(ctx context.Context, modelID string) (*domain.JobStatus, error) {
	job, err := uc.jobs.Get(ctx, modelID)
	if err != nil {
		if domain.IsKind(err, domain.ErrModelNotFound) {
			return &domain.JobStatus{ModelID: modelID, State: domain.JobNotFound}, nil
		}
		return nil, err
	}
	return job, nil
}

// ClearStatus removes a completed or errored job entry. Entries never expire
// on their own.
func (uc *DispatchUseCase) ClearStatus(ctx context.Context, modelID string) error {
	return uc.jobs.Clear(ctx, modelID)
}

func durationMS(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000.0
}
