package usecase

import (
	"sort"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

// guidIndex is the accumulated GUID to surrogate-key map threaded through
// the pipeline stages. Each stage merges the entries returned by its bulk
// write before the next stage resolves against it.
type guidIndex map[string]int64

func (g guidIndex) merge(entries map[string]int64) {
	for guid, id := range entries {
		g[guid] = id
	}
}

// ref resolves a GUID reference into a nullable surrogate key. A missing
// parent is a data-quality signal, not a fatal error: the reference becomes
// NULL and the caller counts it as unresolved.
func (g guidIndex) ref(guid string) (*int64, bool) {
	if guid == "" {
		return nil, true
	}
	id, ok := g[guid]
	if !ok {
		return nil, false
	}
	return &id, true
}

// resolveSpatial orders spatial nodes by hierarchy level so parents are
// always written before their children, then rewrites parent references
// against the entries accumulated so far. Sorting is stable, so resolution
// of the same ParseResult is referentially identical across runs.
func resolveSpatial(items []domain.SpatialItem) []domain.SpatialItem {
	ordered := make([]domain.SpatialItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Level < ordered[j].Level
	})
	return ordered
}

func resolveEntities(entities []domain.EntityRecord, idx guidIndex) ([]domain.ResolvedEntity, int) {
	resolved := make([]domain.ResolvedEntity, 0, len(entities))
	unresolved := 0
	for _, e := range entities {
		parentID, ok := idx.ref(e.ParentStoreyGUID)
		if !ok {
			unresolved++
		}
		resolved = append(resolved, domain.ResolvedEntity{
			GUID:           e.GUID,
			Class:          e.Class,
			Name:           e.Name,
			ParentStoreyID: parentID,
		})
	}
	return resolved, unresolved
}

// resolveTypeAssignments drops rows whose entity or type GUID is unknown:
// an assignment cannot be written with a NULL side, so a dangling reference
// is counted and skipped rather than failing the stage.
func resolveTypeAssignments(assignments []domain.TypeAssignment, idx guidIndex) ([]domain.ResolvedTypeAssignment, int) {
	resolved := make([]domain.ResolvedTypeAssignment, 0, len(assignments))
	skipped := 0
	for _, a := range assignments {
		entityID, okEntity := idx.ref(a.EntityGUID)
		typeID, okType := idx.ref(a.TypeGUID)
		if !okEntity || !okType || entityID == nil || typeID == nil {
			skipped++
			continue
		}
		resolved = append(resolved, domain.ResolvedTypeAssignment{
			EntityID: *entityID,
			TypeID:   *typeID,
		})
	}
	return resolved, skipped
}

func resolveMaterialAssignments(assignments []domain.MaterialAssignment, idx guidIndex) ([]domain.ResolvedMaterialAssignment, int) {
	resolved := make([]domain.ResolvedMaterialAssignment, 0, len(assignments))
	skipped := 0
	for _, a := range assignments {
		entityID, okEntity := idx.ref(a.EntityGUID)
		materialID, okMaterial := idx.ref(a.MaterialGUID)
		if !okEntity || !okMaterial || entityID == nil || materialID == nil {
			skipped++
			continue
		}
		resolved = append(resolved, domain.ResolvedMaterialAssignment{
			EntityID:   *entityID,
			MaterialID: *materialID,
		})
	}
	return resolved, skipped
}

func resolveProperties(properties []domain.PropertyRecord, idx guidIndex) ([]domain.ResolvedProperty, int) {
	resolved := make([]domain.ResolvedProperty, 0, len(properties))
	skipped := 0
	for _, p := range properties {
		ownerID, ok := idx.ref(p.OwnerGUID)
		if !ok || ownerID == nil {
			skipped++
			continue
		}
		resolved = append(resolved, domain.ResolvedProperty{
			EntityID:  *ownerID,
			PsetName:  p.PsetName,
			PropName:  p.PropName,
			Value:     p.Value,
			ValueType: p.ValueType,
		})
	}
	return resolved, skipped
}
