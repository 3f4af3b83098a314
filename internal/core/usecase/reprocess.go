package usecase

import (
	"context"
	"fmt"

	"github.com/modelvault/model-ingest/internal/core/domain"
	"github.com/modelvault/model-ingest/internal/core/ports"
)

// ReprocessModelUseCase recovers from partial or stale writes: it purges all
// previously written rows for the artifact and runs the full pipeline again.
type ReprocessModelUseCase struct {
	processor ports.SyncProcessor
	fetcher   ports.SourceFetcher
	parser    ports.ModelParser
	purge     ports.PurgeStore
}

func NewReprocessModelUseCase(
	processor ports.SyncProcessor,
	fetcher ports.SourceFetcher,
	parser ports.ModelParser,
	purge ports.PurgeStore,
) *ReprocessModelUseCase {
	return &ReprocessModelUseCase{
		processor: processor,
		fetcher:   fetcher,
		parser:    parser,
		purge:     purge,
	}
}

// Reprocess validates the replacement source with a full parse before any
// row is deleted, so an unreadable or unparseable source can never leave the
// artifact with no data at all. Only after the parse succeeds are the old
// rows purged and the pipeline run.
func (uc *ReprocessModelUseCase) Reprocess(ctx context.Context, modelID, source string, opts domain.ProcessOptions) (domain.ProcessResult, error) {
	src, err := uc.fetcher.Fetch(ctx, source)
	if err != nil {
		return domain.ProcessResult{}, domain.WrapError(domain.ErrSourceUnavailable, "fetch replacement source", err)
	}
	_, parseErr := uc.parser.Parse(ctx, src, opts.SkipGeometry)
	_ = src.Close()
	if parseErr != nil {
		return domain.ProcessResult{}, domain.WrapError(domain.ErrInvalidInput, "validate replacement source", parseErr)
	}

	if err := uc.purge.PurgeModelData(ctx, modelID); err != nil {
		return domain.ProcessResult{}, fmt.Errorf("purge model data: %w", err)
	}

	return uc.processor.ProcessSync(ctx, modelID, source, opts), nil
}
