package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

// defaultBatchSize keeps each multi-row insert well below the Postgres
// bind-parameter limit at our widest column count.
const defaultBatchSize = 500

// BulkWriter persists one record collection per call as batched multi-row
// inserts and reports the surrogate keys assigned to each GUID.
type BulkWriter struct {
	db        *sql.DB
	batchSize int
}

func NewBulkWriter(db *sql.DB) *BulkWriter {
	return &BulkWriter{db: db, batchSize: defaultBatchSize}
}

func (w *BulkWriter) WriteSpatialNodes(ctx context.Context, modelID string, nodes []domain.ResolvedSpatialNode) (map[string]int64, error) {
	rows := make([][]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []any{modelID, n.GUID, n.Class, nullableString(n.Name), n.Level, n.Path, nullableID(n.ParentID)})
	}
	return w.insertReturningGUIDs(ctx, "spatial_nodes",
		[]string{"model_id", "guid", "class", "name", "level", "path", "parent_id"}, rows)
}

func (w *BulkWriter) WriteMaterials(ctx context.Context, modelID string, materials []domain.MaterialRecord) (map[string]int64, error) {
	rows := make([][]any, 0, len(materials))
	for _, m := range materials {
		rows = append(rows, []any{modelID, m.GUID, m.Name})
	}
	return w.insertReturningGUIDs(ctx, "materials", []string{"model_id", "guid", "name"}, rows)
}

func (w *BulkWriter) WriteTypes(ctx context.Context, modelID string, types []domain.TypeRecord) (map[string]int64, error) {
	rows := make([][]any, 0, len(types))
	for _, t := range types {
		rows = append(rows, []any{modelID, t.GUID, t.Class, nullableString(t.Name), nullableString(t.PredefinedType)})
	}
	return w.insertReturningGUIDs(ctx, "element_types",
		[]string{"model_id", "guid", "class", "name", "predefined_type"}, rows)
}

func (w *BulkWriter) WriteSystems(ctx context.Context, modelID string, systems []domain.SystemRecord) (map[string]int64, error) {
	rows := make([][]any, 0, len(systems))
	for _, s := range systems {
		rows = append(rows, []any{modelID, s.GUID, s.Name})
	}
	return w.insertReturningGUIDs(ctx, "systems", []string{"model_id", "guid", "name"}, rows)
}

func (w *BulkWriter) WriteElements(ctx context.Context, modelID string, elements []domain.ResolvedEntity) (map[string]int64, error) {
	rows := make([][]any, 0, len(elements))
	for _, e := range elements {
		rows = append(rows, []any{modelID, e.GUID, e.Class, nullableString(e.Name), nullableID(e.ParentStoreyID)})
	}
	return w.insertReturningGUIDs(ctx, "elements",
		[]string{"model_id", "guid", "class", "name", "parent_storey_id"}, rows)
}

func (w *BulkWriter) WriteTypeAssignments(ctx context.Context, modelID string, assignments []domain.ResolvedTypeAssignment) (int, error) {
	rows := make([][]any, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, []any{modelID, a.EntityID, a.TypeID})
	}
	return w.insertPlain(ctx, "type_assignments", []string{"model_id", "element_id", "type_id"}, rows)
}

func (w *BulkWriter) WriteMaterialAssignments(ctx context.Context, modelID string, assignments []domain.ResolvedMaterialAssignment) (int, error) {
	rows := make([][]any, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, []any{modelID, a.EntityID, a.MaterialID})
	}
	return w.insertPlain(ctx, "material_assignments", []string{"model_id", "element_id", "material_id"}, rows)
}

func (w *BulkWriter) WriteProperties(ctx context.Context, modelID string, properties []domain.ResolvedProperty) (int, error) {
	rows := make([][]any, 0, len(properties))
	for _, p := range properties {
		rows = append(rows, []any{modelID, p.EntityID, p.PsetName, p.PropName, nullableString(p.Value), nullableString(p.ValueType)})
	}
	return w.insertPlain(ctx, "properties",
		[]string{"model_id", "element_id", "pset_name", "prop_name", "value", "value_type"}, rows)
}

// insertReturningGUIDs writes rows in batches and collects the id assigned
// to each guid. The guid column must be the second of cols.
func (w *BulkWriter) insertReturningGUIDs(ctx context.Context, table string, cols []string, rows [][]any) (map[string]int64, error) {
	entries := make(map[string]int64, len(rows))
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		batch := rows[start:end]

		query := buildInsert(table, cols, len(batch)) + " RETURNING id, guid"
		result, err := w.db.QueryContext(ctx, query, flatten(batch)...)
		if err != nil {
			return nil, fmt.Errorf("bulk insert %s: %w", table, err)
		}

		for result.Next() {
			var id int64
			var guid string
			if err := result.Scan(&id, &guid); err != nil {
				_ = result.Close()
				return nil, fmt.Errorf("scan %s returning: %w", table, err)
			}
			entries[guid] = id
		}
		if err := result.Err(); err != nil {
			_ = result.Close()
			return nil, fmt.Errorf("iterate %s returning: %w", table, err)
		}
		_ = result.Close()
	}
	return entries, nil
}

func (w *BulkWriter) insertPlain(ctx context.Context, table string, cols []string, rows [][]any) (int, error) {
	written := 0
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		batch := rows[start:end]

		query := buildInsert(table, cols, len(batch))
		if _, err := w.db.ExecContext(ctx, query, flatten(batch)...); err != nil {
			return written, fmt.Errorf("bulk insert %s: %w", table, err)
		}
		written += len(batch)
	}
	return written, nil
}

func buildInsert(table string, cols []string, rowCount int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	arg := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for col := range cols {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteString(")")
	}
	return b.String()
}

func flatten(rows [][]any) []any {
	args := make([]any, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		args = append(args, row...)
	}
	return args
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
