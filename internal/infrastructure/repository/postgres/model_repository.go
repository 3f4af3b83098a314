package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

type ModelRepository struct {
	db *sql.DB
}

func NewModelRepository(db *sql.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ModelRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS models (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	source_path TEXT NOT NULL,
	ifc_schema TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	element_count INTEGER NOT NULL DEFAULT 0,
	storey_count INTEGER NOT NULL DEFAULT 0,
	system_count INTEGER NOT NULL DEFAULT 0,
	property_count INTEGER NOT NULL DEFAULT 0,
	material_count INTEGER NOT NULL DEFAULT 0,
	type_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS spatial_nodes (
	id BIGSERIAL PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	guid TEXT NOT NULL,
	class TEXT NOT NULL,
	name TEXT,
	level INTEGER NOT NULL,
	path TEXT NOT NULL,
	parent_id BIGINT REFERENCES spatial_nodes(id),
	UNIQUE (model_id, guid)
);

CREATE TABLE IF NOT EXISTS materials (
	id BIGSERIAL PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	guid TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE (model_id, guid)
);

CREATE TABLE IF NOT EXISTS element_types (
	id BIGSERIAL PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	guid TEXT NOT NULL,
	class TEXT NOT NULL,
	name TEXT,
	predefined_type TEXT,
	UNIQUE (model_id, guid)
);

CREATE TABLE IF NOT EXISTS systems (
	id BIGSERIAL PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	guid TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE (model_id, guid)
);

CREATE TABLE IF NOT EXISTS elements (
	id BIGSERIAL PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	guid TEXT NOT NULL,
	class TEXT NOT NULL,
	name TEXT,
	parent_storey_id BIGINT REFERENCES spatial_nodes(id),
	UNIQUE (model_id, guid)
);

CREATE TABLE IF NOT EXISTS type_assignments (
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	element_id BIGINT NOT NULL REFERENCES elements(id) ON DELETE CASCADE,
	type_id BIGINT NOT NULL REFERENCES element_types(id) ON DELETE CASCADE,
	PRIMARY KEY (element_id, type_id)
);

CREATE TABLE IF NOT EXISTS material_assignments (
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	element_id BIGINT NOT NULL REFERENCES elements(id) ON DELETE CASCADE,
	material_id BIGINT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
	PRIMARY KEY (element_id, material_id)
);

CREATE TABLE IF NOT EXISTS properties (
	id BIGSERIAL PRIMARY KEY,
	model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
	element_id BIGINT NOT NULL,
	pset_name TEXT NOT NULL,
	prop_name TEXT NOT NULL,
	value TEXT,
	value_type TEXT
);

CREATE TABLE IF NOT EXISTS processing_reports (
	id TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL,
	ifc_schema TEXT,
	stage_results JSONB NOT NULL DEFAULT '[]'::jsonb,
	errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	total_processed INTEGER NOT NULL DEFAULT 0,
	total_failed INTEGER NOT NULL DEFAULT 0,
	catastrophic_failure BOOLEAN NOT NULL DEFAULT FALSE,
	failure_detail TEXT,
	summary TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_jobs (
	model_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	result JSONB,
	error_message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_models_status ON models(status);
CREATE INDEX IF NOT EXISTS idx_elements_model ON elements(model_id);
CREATE INDEX IF NOT EXISTS idx_properties_element ON properties(element_id);
CREATE INDEX IF NOT EXISTS idx_reports_model ON processing_reports(model_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ModelRepository) Create(ctx context.Context, m *domain.Model) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO models (
	id, filename, source_path, ifc_schema, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		m.ID, m.Filename, m.SourcePath, m.Schema, string(m.Status), m.Error, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (r *ModelRepository) GetByID(ctx context.Context, id string) (*domain.Model, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, source_path, ifc_schema, status, error_message,
	element_count, storey_count, system_count, property_count, material_count, type_count,
	created_at, updated_at
FROM models
WHERE id = $1
`, id)

	var m domain.Model
	var status string
	var schema, errMessage sql.NullString

	err := row.Scan(
		&m.ID, &m.Filename, &m.SourcePath, &schema, &status, &errMessage,
		&m.ElementCount, &m.StoreyCount, &m.SystemCount, &m.PropertyCount, &m.MaterialCount, &m.TypeCount,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrModelNotFound, "get model", err)
		}
		return nil, fmt.Errorf("scan model: %w", err)
	}

	m.Schema = schema.String
	m.Error = errMessage.String
	m.Status = domain.ProcessingStatus(status)
	return &m, nil
}

func (r *ModelRepository) UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE models
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update model status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrModelNotFound, "update model status", sql.ErrNoRows)
	}
	return nil
}

func (r *ModelRepository) SaveCounts(ctx context.Context, id string, schema string, counts domain.ModelCounts) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE models
SET ifc_schema = $2, element_count = $3, storey_count = $4, system_count = $5,
	property_count = $6, material_count = $7, type_count = $8, updated_at = $9
WHERE id = $1
`, id, schema, counts.Elements, counts.Storeys, counts.Systems,
		counts.Properties, counts.Materials, counts.Types, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save model counts: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrModelNotFound, "save model counts", sql.ErrNoRows)
	}
	return nil
}

// PurgeModelData removes every extracted row for one artifact while keeping
// the model row itself. Deletion runs children first inside one transaction.
func (r *ModelRepository) PurgeModelData(ctx context.Context, modelID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{
		"properties",
		"type_assignments",
		"material_assignments",
		"elements",
		"systems",
		"element_types",
		"materials",
		"spatial_nodes",
	} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE model_id = $1`, modelID); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge tx: %w", err)
	}
	return nil
}
