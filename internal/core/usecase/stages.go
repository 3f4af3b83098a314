package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/modelvault/model-ingest/internal/core/domain"
	"github.com/modelvault/model-ingest/internal/core/ports"
)

// pipelineState threads one attempt's parse result and the merged GUID index
// through the ordered stages.
type pipelineState struct {
	modelID string
	parsed  *domain.ParseResult
	idx     guidIndex
	counts  domain.ModelCounts
}

// stageSpec declares one write stage and the collections it resolves
// against. The slice returned by stagePlan is the dependency order; it is
// the single place that order is stated.
type stageSpec struct {
	name  string
	needs []string
	run   func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (written, unresolved, skipped int, err error)
}

// stagePlan is the fixed dependency order of the pipeline. Spatial nodes go
// first because elements may declare a spatial node as parent; assignments
// and properties go last because they need the full entity index.
func stagePlan() []stageSpec {
	return []stageSpec{
		{
			name: "spatial",
			run:  runSpatialStage,
		},
		{
			name: "materials",
			run: func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
				entries, err := w.WriteMaterials(ctx, st.modelID, st.parsed.Materials)
				if err != nil {
					return 0, 0, 0, err
				}
				st.idx.merge(entries)
				st.counts.Materials = len(entries)
				return len(entries), 0, 0, nil
			},
		},
		{
			name: "types",
			run: func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
				entries, err := w.WriteTypes(ctx, st.modelID, st.parsed.Types)
				if err != nil {
					return 0, 0, 0, err
				}
				st.idx.merge(entries)
				st.counts.Types = len(entries)
				return len(entries), 0, 0, nil
			},
		},
		{
			name: "systems",
			run: func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
				entries, err := w.WriteSystems(ctx, st.modelID, st.parsed.Systems)
				if err != nil {
					return 0, 0, 0, err
				}
				st.idx.merge(entries)
				st.counts.Systems = len(entries)
				return len(entries), 0, 0, nil
			},
		},
		{
			name:  "elements",
			needs: []string{"spatial"},
			run: func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
				resolved, unresolved := resolveEntities(st.parsed.Entities, st.idx)
				entries, err := w.WriteElements(ctx, st.modelID, resolved)
				if err != nil {
					return 0, unresolved, 0, err
				}
				st.idx.merge(entries)
				st.counts.Elements = len(entries)
				return len(entries), unresolved, 0, nil
			},
		},
		{
			name:  "type_assignments",
			needs: []string{"elements", "types"},
			run: func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
				resolved, skipped := resolveTypeAssignments(st.parsed.TypeAssignments, st.idx)
				written, err := w.WriteTypeAssignments(ctx, st.modelID, resolved)
				if err != nil {
					return 0, 0, skipped, err
				}
				return written, 0, skipped, nil
			},
		},
		{
			name:  "material_assignments",
			needs: []string{"elements", "materials"},
			run: func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
				resolved, skipped := resolveMaterialAssignments(st.parsed.MaterialAssignments, st.idx)
				written, err := w.WriteMaterialAssignments(ctx, st.modelID, resolved)
				if err != nil {
					return 0, 0, skipped, err
				}
				return written, 0, skipped, nil
			},
		},
		{
			name:  "properties",
			needs: []string{"elements", "spatial"},
			run: func(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
				resolved, skipped := resolveProperties(st.parsed.Properties, st.idx)
				written, err := w.WriteProperties(ctx, st.modelID, resolved)
				if err != nil {
					return 0, 0, skipped, err
				}
				st.counts.Properties = written
				return written, 0, skipped, nil
			},
		},
	}
}

// runSpatialStage writes the containment tree one hierarchy level at a time
// so every parent id exists before its children are resolved against it.
func runSpatialStage(ctx context.Context, w ports.BulkWriter, st *pipelineState) (int, int, int, error) {
	ordered := resolveSpatial(st.parsed.Spatial)

	written := 0
	unresolved := 0
	for start := 0; start < len(ordered); {
		end := start
		for end < len(ordered) && ordered[end].Level == ordered[start].Level {
			end++
		}

		batch := make([]domain.ResolvedSpatialNode, 0, end-start)
		for _, item := range ordered[start:end] {
			parentID, ok := st.idx.ref(item.ParentGUID)
			if !ok {
				unresolved++
			}
			batch = append(batch, domain.ResolvedSpatialNode{
				GUID:     item.GUID,
				Class:    item.Class,
				Name:     item.Name,
				Level:    item.Level,
				Path:     item.Path,
				ParentID: parentID,
			})
		}

		entries, err := w.WriteSpatialNodes(ctx, st.modelID, batch)
		if err != nil {
			return written, unresolved, 0, fmt.Errorf("write spatial level %d: %w", ordered[start].Level, err)
		}
		st.idx.merge(entries)
		written += len(entries)
		start = end
	}

	st.counts.Storeys = st.parsed.StoreyCount()
	return written, unresolved, 0, nil
}

func runStage(ctx context.Context, spec stageSpec, w ports.BulkWriter, st *pipelineState) (domain.StageResult, error) {
	started := time.Now()
	written, unresolved, skipped, err := spec.run(ctx, w, st)
	result := domain.StageResult{
		Name:       spec.name,
		Written:    written,
		Unresolved: unresolved,
		Skipped:    skipped,
		DurationMS: float64(time.Since(started).Microseconds()) / 1000.0,
	}
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("stage %s: %w", spec.name, err)
	}
	return result, nil
}
