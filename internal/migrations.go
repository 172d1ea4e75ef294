package internal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Foreign keys whose violation means a delete is still referenced.
const (
	fkNestedResource       = "resource_attributes_nested_resource_fkey"
	fkTargetRepresentation = "attributes_resource_representations_target_fkey"
	fkResponseRepresent    = "responses_representation_fkey"
)

// schemaStatements creates the graph tables. Ownership edges cascade; the
// nesting and rendering edges use NO ACTION so deleting a referenced resource
// or representation fails.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schemes (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL CHECK (kind IN ('format', 'pattern')),
		regexp TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS resources (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		UNIQUE (project_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS resource_attributes (
		id BIGSERIAL PRIMARY KEY,
		resource_id BIGINT NOT NULL REFERENCES resources (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		primitive_type TEXT CHECK (primitive_type IN ('string', 'integer', 'number', 'boolean', 'null')),
		nested_resource_id BIGINT,
		is_array BOOLEAN NOT NULL DEFAULT FALSE,
		nullable BOOLEAN NOT NULL DEFAULT FALSE,
		enum TEXT[],
		scheme_id BIGINT REFERENCES schemes (id) ON DELETE SET NULL,
		min_length INTEGER,
		max_length INTEGER,
		minimum DOUBLE PRECISION,
		maximum DOUBLE PRECISION,
		description TEXT,
		faker TEXT,
		UNIQUE (resource_id, name),
		CONSTRAINT resource_attributes_kind_check CHECK ((primitive_type IS NULL) <> (nested_resource_id IS NULL)),
		CONSTRAINT ` + fkNestedResource + ` FOREIGN KEY (nested_resource_id) REFERENCES resources (id)
	)`,
	`CREATE TABLE IF NOT EXISTS resource_representations (
		id BIGSERIAL PRIMARY KEY,
		resource_id BIGINT NOT NULL REFERENCES resources (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		UNIQUE (resource_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS attributes_resource_representations (
		id BIGSERIAL PRIMARY KEY,
		resource_representation_id BIGINT NOT NULL REFERENCES resource_representations (id) ON DELETE CASCADE,
		resource_attribute_id BIGINT NOT NULL REFERENCES resource_attributes (id) ON DELETE CASCADE,
		custom_nullable BOOLEAN,
		custom_enum TEXT,
		custom_pattern TEXT,
		custom_faker TEXT,
		is_required BOOLEAN NOT NULL DEFAULT FALSE,
		target_representation_id BIGINT,
		UNIQUE (resource_representation_id, resource_attribute_id),
		CONSTRAINT ` + fkTargetRepresentation + ` FOREIGN KEY (target_representation_id) REFERENCES resource_representations (id)
	)`,
	`CREATE TABLE IF NOT EXISTS routes (
		id BIGSERIAL PRIMARY KEY,
		resource_id BIGINT NOT NULL REFERENCES resources (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		http_method TEXT NOT NULL,
		url TEXT NOT NULL,
		request_body_schema TEXT,
		UNIQUE (resource_id, name),
		UNIQUE (resource_id, http_method, url)
	)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id BIGSERIAL PRIMARY KEY,
		route_id BIGINT NOT NULL REFERENCES routes (id) ON DELETE CASCADE,
		status_code INTEGER NOT NULL DEFAULT 200,
		body_schema TEXT,
		resource_representation_id BIGINT,
		is_collection BOOLEAN NOT NULL DEFAULT FALSE,
		root_key TEXT,
		CONSTRAINT ` + fkResponseRepresent + ` FOREIGN KEY (resource_representation_id) REFERENCES resource_representations (id)
	)`,
	`CREATE TABLE IF NOT EXISTS mock_profiles (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS resource_instances (
		id BIGSERIAL PRIMARY KEY,
		resource_id BIGINT NOT NULL REFERENCES resources (id) ON DELETE CASCADE,
		name TEXT,
		content JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS mock_pickers (
		id BIGSERIAL PRIMARY KEY,
		mock_profile_id BIGINT NOT NULL REFERENCES mock_profiles (id) ON DELETE CASCADE,
		response_id BIGINT NOT NULL REFERENCES responses (id) ON DELETE CASCADE,
		position INTEGER NOT NULL DEFAULT 0,
		body_pattern TEXT,
		url_pattern TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS mock_pickers_resource_instances (
		mock_picker_id BIGINT NOT NULL REFERENCES mock_pickers (id) ON DELETE CASCADE,
		resource_instance_id BIGINT NOT NULL REFERENCES resource_instances (id) ON DELETE CASCADE,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (mock_picker_id, resource_instance_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mock_pickers_profile ON mock_pickers (mock_profile_id, position, id)`,
}

// GraphTables are the tables Migrate creates.
var GraphTables = append(append([]string(nil), serialTables...), "mock_pickers_resource_instances")

type migrationPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Migrate creates the graph tables in one transaction. It is idempotent.
func Migrate(ctx context.Context, pool migrationPool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	zap.S().Infow("graph schema ready", "statements", len(schemaStatements))
	return nil
}
