package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modelvault/model-ingest/internal/core/domain"
	"github.com/modelvault/model-ingest/internal/core/ports"
)

type IngestModelUseCase struct {
	models  ports.ModelStore
	storage ports.ObjectStorage
}

func NewIngestModelUseCase(models ports.ModelStore, storage ports.ObjectStorage) *IngestModelUseCase {
	return &IngestModelUseCase{
		models:  models,
		storage: storage,
	}
}

// Upload stores the raw model file and creates the artifact row in pending
// state; processing is scheduled separately by the dispatcher.
func (uc *IngestModelUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.Model, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	model := &domain.Model{
		ID:         id,
		Filename:   filename,
		SourcePath: storageKey,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := uc.models.Create(ctx, model); err != nil {
		return nil, fmt.Errorf("create model metadata: %w", err)
	}

	return model, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "model.ifc"
	}
	return base
}
