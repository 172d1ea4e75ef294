package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/restmodel"
	"go.uber.org/zap"
)

const (
	seedSchemeSQL = `INSERT INTO schemes (id, name, kind, regexp) VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (id) DO NOTHING`
	seedResourceSQL = `INSERT INTO resources (id, project_id, name, description) VALUES ($1, $2, $3, NULLIF($4, ''))`
	seedAttributeSQL = `INSERT INTO resource_attributes
		(id, resource_id, name, primitive_type, nested_resource_id, is_array, nullable, enum, scheme_id,
		 min_length, max_length, minimum, maximum, description, faker)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), NULLIF($15, ''))`
	seedRepresentationSQL = `INSERT INTO resource_representations (id, resource_id, name, description)
		VALUES ($1, $2, $3, NULLIF($4, ''))`
	seedRowSQL = `INSERT INTO attributes_resource_representations
		(id, resource_representation_id, resource_attribute_id, custom_nullable, custom_enum, custom_pattern,
		 custom_faker, is_required, target_representation_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9)`
	seedRouteSQL = `INSERT INTO routes (id, resource_id, name, description, http_method, url, request_body_schema)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''))`
	seedResponseSQL = `INSERT INTO responses
		(id, route_id, status_code, body_schema, resource_representation_id, is_collection, root_key)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''))`
	seedProfileSQL  = `INSERT INTO mock_profiles (id, project_id, name) VALUES ($1, $2, $3)`
	seedInstanceSQL = `INSERT INTO resource_instances (id, resource_id, name, content) VALUES ($1, $2, NULLIF($3, ''), $4)`
	seedPickerSQL   = `INSERT INTO mock_pickers (id, mock_profile_id, response_id, position, body_pattern, url_pattern)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`
)

// serialTables have their id sequence moved past the seeded ids.
var serialTables = []string{
	"schemes", "resources", "resource_attributes", "resource_representations",
	"attributes_resource_representations", "routes", "responses", "mock_profiles",
	"resource_instances", "mock_pickers",
}

type seedStatement struct {
	sql  string
	args []any
}

// Seed copies the graph held by a memory store into the Postgres tables in
// one transaction, keeping its ids. Tables must exist (see Migrate).
func Seed(ctx context.Context, pool migrationPool, store *MemoryStore) error {
	stmts := seedStatements(store.Snapshot())

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, st := range stmts {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return fmt.Errorf("seed %q: %w", firstLine(st.sql), err)
		}
	}
	for _, table := range serialTables {
		sql := fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM %[1]s), 1))`,
			table)
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("advance sequence of %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	zap.S().Infow("graph seeded", "statements", len(stmts))
	return nil
}

// seedStatements orders inserts so every foreign key target exists before it
// is referenced: all resources precede attributes, and all representations
// precede rows.
func seedStatements(f *Fixture) []seedStatement {
	var out []seedStatement
	add := func(sql string, args ...any) {
		out = append(out, seedStatement{sql: sql, args: args})
	}

	schemes := make(map[int64]bool)
	for _, r := range f.Resources {
		for _, a := range r.Attributes {
			if a.Scheme != nil && !schemes[a.Scheme.ID] {
				schemes[a.Scheme.ID] = true
				add(seedSchemeSQL, a.Scheme.ID, a.Scheme.Name, string(a.Scheme.Kind), a.Scheme.Regexp)
			}
		}
	}
	for _, r := range f.Resources {
		add(seedResourceSQL, r.ID, r.ProjectID, r.Name, r.Description)
	}
	for _, r := range f.Resources {
		for _, a := range r.Attributes {
			add(seedAttributeSQL, a.ID, r.ID, a.Name, string(a.PrimitiveType), a.NestedResourceID,
				a.IsArray, a.Nullable, a.Enum, schemeID(a.Scheme),
				a.MinLength, a.MaxLength, a.Minimum, a.Maximum, a.Description, a.Faker)
		}
	}
	for _, rep := range f.Representations {
		add(seedRepresentationSQL, rep.ID, rep.ResourceID, rep.Name, rep.Description)
	}
	for _, rep := range f.Representations {
		for _, row := range rep.Rows {
			add(seedRowSQL, row.ID, rep.ID, row.AttributeID, row.CustomNullable, row.CustomEnum,
				row.CustomPattern, row.CustomFaker, row.IsRequired, row.TargetRepresentationID)
		}
	}
	for _, route := range f.Routes {
		add(seedRouteSQL, route.ID, route.ResourceID, route.Name, route.Description,
			route.HTTPMethod, route.URL, route.RequestBodySchema)
		for _, resp := range route.Responses {
			add(seedResponseSQL, resp.ID, route.ID, resp.Status(), resp.BodySchema,
				resp.RepresentationID, resp.IsCollection, resp.RootKey)
		}
	}
	for _, p := range f.MockProfiles {
		add(seedProfileSQL, p.ID, p.ProjectID, p.Name)
	}
	for _, inst := range f.ResourceInstances {
		add(seedInstanceSQL, inst.ID, inst.ResourceID, inst.Name, instanceContent(inst))
	}
	for _, p := range f.MockPickers {
		add(seedPickerSQL, p.ID, p.MockProfileID, p.ResponseID, p.Position, p.BodyPattern, p.URLPattern)
		for pos, instID := range p.InstanceIDs {
			add(insertPickerInstanceSQL, p.ID, instID, pos)
		}
	}
	return out
}

func schemeID(s *restmodel.Scheme) *int64 {
	if s == nil {
		return nil
	}
	return &s.ID
}

func instanceContent(inst restmodel.ResourceInstance) map[string]any {
	if inst.Content == nil {
		return map[string]any{}
	}
	return inst.Content
}

func firstLine(sql string) string {
	line, _, _ := strings.Cut(sql, "\n")
	return line
}
