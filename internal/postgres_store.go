package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/restmodel"
	"go.uber.org/zap"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

type graphPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore is the GraphStore backed by the tables of Migrate.
type PostgresStore struct {
	pool graphPool
}

// NewPostgresStore creates a store over a pgx pool.
func NewPostgresStore(pool graphPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const (
	selectRepresentationSQL = `SELECT rr.id, rr.resource_id, rr.name, COALESCE(rr.description, ''),
		r.project_id, r.name, COALESCE(r.description, '')
		FROM resource_representations rr
		JOIN resources r ON r.id = rr.resource_id
		WHERE rr.id = $1`

	selectAttributesSQL = `SELECT a.id, a.name, a.primitive_type, a.nested_resource_id, a.is_array, a.nullable,
		a.enum, a.min_length, a.max_length, a.minimum, a.maximum,
		COALESCE(a.description, ''), COALESCE(a.faker, ''),
		s.id, COALESCE(s.name, ''), COALESCE(s.kind, ''), COALESCE(s.regexp, '')
		FROM resource_attributes a
		LEFT JOIN schemes s ON s.id = a.scheme_id
		WHERE a.resource_id = $1
		ORDER BY a.id`

	selectRowsSQL = `SELECT id, resource_attribute_id, custom_nullable,
		COALESCE(custom_enum, ''), COALESCE(custom_pattern, ''), COALESCE(custom_faker, ''),
		is_required, target_representation_id
		FROM attributes_resource_representations
		WHERE resource_representation_id = $1
		ORDER BY id`

	listRepresentationsSQL = `SELECT id, resource_id, name, COALESCE(description, '')
		FROM resource_representations
		WHERE resource_id = $1
		ORDER BY id`

	insertRowSQL = `INSERT INTO attributes_resource_representations
		(resource_representation_id, resource_attribute_id, custom_nullable, custom_enum, custom_pattern,
		 custom_faker, is_required, target_representation_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)`

	updateRowSQL = `UPDATE attributes_resource_representations
		SET resource_attribute_id = $3, custom_nullable = $4, custom_enum = NULLIF($5, ''),
		    custom_pattern = NULLIF($6, ''), custom_faker = NULLIF($7, ''), is_required = $8,
		    target_representation_id = $9
		WHERE id = $1 AND resource_representation_id = $2`

	deleteRowByIDSQL        = `DELETE FROM attributes_resource_representations WHERE id = $1 AND resource_representation_id = $2`
	deleteRowByAttributeSQL = `DELETE FROM attributes_resource_representations WHERE resource_attribute_id = $1 AND resource_representation_id = $2`

	deleteResourceSQL       = `DELETE FROM resources WHERE id = $1`
	deleteRepresentationSQL = `DELETE FROM resource_representations WHERE id = $1`

	insertPickerSQL = `INSERT INTO mock_pickers (mock_profile_id, response_id, position, body_pattern, url_pattern)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id`
	updatePickerSQL = `UPDATE mock_pickers
		SET mock_profile_id = $2, response_id = $3, position = $4, body_pattern = NULLIF($5, ''), url_pattern = NULLIF($6, '')
		WHERE id = $1`
	clearPickerInstancesSQL = `DELETE FROM mock_pickers_resource_instances WHERE mock_picker_id = $1`
	insertPickerInstanceSQL = `INSERT INTO mock_pickers_resource_instances (mock_picker_id, resource_instance_id, position) VALUES ($1, $2, $3)`
	selectMockProfileSQL    = `SELECT id, project_id, name FROM mock_profiles WHERE id = $1`
	selectRoutesSQL         = `SELECT rt.id, rt.resource_id, rt.name, COALESCE(rt.description, ''), rt.http_method, rt.url,
		COALESCE(rt.request_body_schema, '')
		FROM routes rt
		JOIN resources r ON r.id = rt.resource_id
		WHERE r.project_id = $1
		ORDER BY rt.id`
	selectResponsesSQL = `SELECT id, route_id, status_code, COALESCE(body_schema, ''), resource_representation_id,
		is_collection, COALESCE(root_key, '')
		FROM responses
		WHERE route_id = ANY($1)
		ORDER BY id`
	selectPickersSQL = `SELECT p.id, p.mock_profile_id, p.response_id, p.position,
		COALESCE(p.body_pattern, ''), COALESCE(p.url_pattern, ''),
		COALESCE(array_agg(l.resource_instance_id ORDER BY l.position, l.resource_instance_id)
			FILTER (WHERE l.resource_instance_id IS NOT NULL), '{}')
		FROM mock_pickers p
		LEFT JOIN mock_pickers_resource_instances l ON l.mock_picker_id = p.id
		WHERE p.mock_profile_id = $1
		GROUP BY p.id
		ORDER BY p.position, p.id`
	selectInstancesSQL = `SELECT id, resource_id, COALESCE(name, ''), content
		FROM resource_instances
		WHERE id = ANY($1)`
)

// GetRepresentation reads a representation with its resource, attributes
// and join rows.
func (s *PostgresStore) GetRepresentation(ctx context.Context, id int64) (*restmodel.Representation, error) {
	rep := &restmodel.Representation{Resource: &restmodel.Resource{}}
	err := s.pool.QueryRow(ctx, selectRepresentationSQL, id).Scan(
		&rep.ID, &rep.ResourceID, &rep.Name, &rep.Description,
		&rep.Resource.ProjectID, &rep.Resource.Name, &rep.Resource.Description,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, restmodel.NewNotFoundError("representation", id)
		}
		return nil, fmt.Errorf("query representation %d: %w", id, err)
	}
	rep.Resource.ID = rep.ResourceID

	attrs, err := s.attributes(ctx, rep.ResourceID)
	if err != nil {
		return nil, err
	}
	rep.Resource.Attributes = attrs

	rows, err := s.rows(ctx, id)
	if err != nil {
		return nil, err
	}
	rep.Rows = rows
	return rep, nil
}

func (s *PostgresStore) attributes(ctx context.Context, resourceID int64) ([]restmodel.ResourceAttribute, error) {
	rows, err := s.pool.Query(ctx, selectAttributesSQL, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query attributes of resource %d: %w", resourceID, err)
	}
	defer rows.Close()

	var out []restmodel.ResourceAttribute
	for rows.Next() {
		var (
			a            restmodel.ResourceAttribute
			primitive    *string
			schemeID     *int64
			schemeName   string
			schemeKind   string
			schemeRegexp string
		)
		if err := rows.Scan(
			&a.ID, &a.Name, &primitive, &a.NestedResourceID, &a.IsArray, &a.Nullable,
			&a.Enum, &a.MinLength, &a.MaxLength, &a.Minimum, &a.Maximum,
			&a.Description, &a.Faker,
			&schemeID, &schemeName, &schemeKind, &schemeRegexp,
		); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		a.ResourceID = resourceID
		if primitive != nil {
			a.PrimitiveType = restmodel.PrimitiveType(*primitive)
		}
		if schemeID != nil {
			a.Scheme = &restmodel.Scheme{
				ID:     *schemeID,
				Name:   schemeName,
				Kind:   restmodel.SchemeKind(schemeKind),
				Regexp: schemeRegexp,
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) rows(ctx context.Context, representationID int64) ([]restmodel.AttributeRepresentation, error) {
	rows, err := s.pool.Query(ctx, selectRowsSQL, representationID)
	if err != nil {
		return nil, fmt.Errorf("query rows of representation %d: %w", representationID, err)
	}
	defer rows.Close()

	var out []restmodel.AttributeRepresentation
	for rows.Next() {
		r := restmodel.AttributeRepresentation{RepresentationID: representationID}
		if err := rows.Scan(
			&r.ID, &r.AttributeID, &r.CustomNullable,
			&r.CustomEnum, &r.CustomPattern, &r.CustomFaker,
			&r.IsRequired, &r.TargetRepresentationID,
		); err != nil {
			return nil, fmt.Errorf("scan attribute representation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attribute representations: %w", err)
	}
	return out, nil
}

// ListRepresentations returns the resource's representations without rows.
func (s *PostgresStore) ListRepresentations(ctx context.Context, resourceID int64) ([]restmodel.Representation, error) {
	rows, err := s.pool.Query(ctx, listRepresentationsSQL, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query representations of resource %d: %w", resourceID, err)
	}
	defer rows.Close()

	var out []restmodel.Representation
	for rows.Next() {
		var rep restmodel.Representation
		if err := rows.Scan(&rep.ID, &rep.ResourceID, &rep.Name, &rep.Description); err != nil {
			return nil, fmt.Errorf("scan representation: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate representations: %w", err)
	}
	return out, nil
}

// SaveRepresentationRows applies the batch in one transaction.
func (s *PostgresStore) SaveRepresentationRows(ctx context.Context, representationID int64, rows []restmodel.AttributeRepresentation) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		switch {
		case row.Destroy && row.ID != 0:
			_, err = tx.Exec(ctx, deleteRowByIDSQL, row.ID, representationID)
		case row.Destroy:
			_, err = tx.Exec(ctx, deleteRowByAttributeSQL, row.AttributeID, representationID)
		case row.ID == 0:
			_, err = tx.Exec(ctx, insertRowSQL,
				representationID, row.AttributeID, row.CustomNullable, row.CustomEnum, row.CustomPattern,
				row.CustomFaker, row.IsRequired, row.TargetRepresentationID)
		default:
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx, updateRowSQL,
				row.ID, representationID, row.AttributeID, row.CustomNullable, row.CustomEnum, row.CustomPattern,
				row.CustomFaker, row.IsRequired, row.TargetRepresentationID)
			if err == nil && tag.RowsAffected() == 0 {
				return restmodel.NewNotFoundError("attribute representation", row.ID)
			}
		}
		if err != nil {
			return rowWriteError(row, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rows: %w", err)
	}
	return nil
}

func rowWriteError(row restmodel.AttributeRepresentation, err error) error {
	if _, ok := pgError(err, pgForeignKeyViolation); ok {
		return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
			fmt.Sprintf("row for attribute %d references a missing record", row.AttributeID)).WithCause(err)
	}
	if _, ok := pgError(err, pgUniqueViolation); ok {
		return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDuplicateRow,
			fmt.Sprintf("attribute %d already has a row", row.AttributeID)).WithCause(err)
	}
	return fmt.Errorf("write row for attribute %d: %w", row.AttributeID, err)
}

// DeleteResource removes a resource; owned rows cascade.
func (s *PostgresStore) DeleteResource(ctx context.Context, id int64) error {
	return s.delete(ctx, deleteResourceSQL, "resource", id)
}

// DeleteRepresentation removes a representation and its join rows.
func (s *PostgresStore) DeleteRepresentation(ctx context.Context, id int64) error {
	return s.delete(ctx, deleteRepresentationSQL, "representation", id)
}

func (s *PostgresStore) delete(ctx context.Context, sql, kind string, id int64) error {
	tag, err := s.pool.Exec(ctx, sql, id)
	if err != nil {
		if pgErr, ok := pgError(err, pgForeignKeyViolation); ok {
			zap.S().Infow("delete blocked by reference", "kind", kind, "id", id, "constraint", pgErr.ConstraintName)
			return restmodel.NewDeleteConflictError(conflictCode(pgErr.ConstraintName),
				fmt.Sprintf("%s %d is still referenced", kind, id)).
				WithDetail("constraint", pgErr.ConstraintName)
		}
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return restmodel.NewNotFoundError(kind, id)
	}
	return nil
}

func conflictCode(constraint string) string {
	switch constraint {
	case fkNestedResource:
		return restmodel.ErrCodeReferencedByAttribute
	case fkResponseRepresent:
		return restmodel.ErrCodeReferencedByResponse
	default:
		return restmodel.ErrCodeReferencedByRepresentation
	}
}

// SaveMockPicker inserts a picker with a zero id or replaces an existing one,
// rewriting its instance bindings.
func (s *PostgresStore) SaveMockPicker(ctx context.Context, picker *restmodel.MockPicker) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id := picker.ID
	if id == 0 {
		err = tx.QueryRow(ctx, insertPickerSQL,
			picker.MockProfileID, picker.ResponseID, picker.Position, picker.BodyPattern, picker.URLPattern).Scan(&id)
		if err != nil {
			return pickerWriteError(err)
		}
	} else {
		tag, err := tx.Exec(ctx, updatePickerSQL,
			id, picker.MockProfileID, picker.ResponseID, picker.Position, picker.BodyPattern, picker.URLPattern)
		if err != nil {
			return pickerWriteError(err)
		}
		if tag.RowsAffected() == 0 {
			return restmodel.NewNotFoundError("mock picker", id)
		}
		if _, err := tx.Exec(ctx, clearPickerInstancesSQL, id); err != nil {
			return fmt.Errorf("clear picker instances: %w", err)
		}
	}

	for pos, instanceID := range picker.InstanceIDs {
		if _, err := tx.Exec(ctx, insertPickerInstanceSQL, id, instanceID, pos); err != nil {
			return pickerWriteError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit picker: %w", err)
	}
	picker.ID = id
	return nil
}

func pickerWriteError(err error) error {
	if pgErr, ok := pgError(err, pgForeignKeyViolation); ok {
		return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
			"mock picker references a missing record").
			WithDetail("constraint", pgErr.ConstraintName).WithCause(err)
	}
	return fmt.Errorf("write mock picker: %w", err)
}

// GetMockProfile reads a mock profile.
func (s *PostgresStore) GetMockProfile(ctx context.Context, id int64) (*restmodel.MockProfile, error) {
	var p restmodel.MockProfile
	if err := s.pool.QueryRow(ctx, selectMockProfileSQL, id).Scan(&p.ID, &p.ProjectID, &p.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, restmodel.NewNotFoundError("mock profile", id)
		}
		return nil, fmt.Errorf("query mock profile %d: %w", id, err)
	}
	return &p, nil
}

// ListRoutes reads the project's routes and their responses, both by id.
func (s *PostgresStore) ListRoutes(ctx context.Context, projectID int64) ([]restmodel.Route, error) {
	rows, err := s.pool.Query(ctx, selectRoutesSQL, projectID)
	if err != nil {
		return nil, fmt.Errorf("query routes of project %d: %w", projectID, err)
	}
	var (
		routes []restmodel.Route
		ids    []int64
	)
	for rows.Next() {
		var r restmodel.Route
		if err := rows.Scan(&r.ID, &r.ResourceID, &r.Name, &r.Description, &r.HTTPMethod, &r.URL, &r.RequestBodySchema); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, r)
		ids = append(ids, r.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", err)
	}
	if len(routes) == 0 {
		return nil, nil
	}

	respRows, err := s.pool.Query(ctx, selectResponsesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer respRows.Close()

	byRoute := make(map[int64][]restmodel.Response, len(routes))
	for respRows.Next() {
		var r restmodel.Response
		if err := respRows.Scan(&r.ID, &r.RouteID, &r.StatusCode, &r.BodySchema, &r.RepresentationID, &r.IsCollection, &r.RootKey); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		byRoute[r.RouteID] = append(byRoute[r.RouteID], r)
	}
	if err := respRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	for i := range routes {
		routes[i].Responses = byRoute[routes[i].ID]
	}
	return routes, nil
}

// ListPickers reads the profile's pickers ordered by (Position, ID) with
// their instance ids in binding order.
func (s *PostgresStore) ListPickers(ctx context.Context, profileID int64) ([]restmodel.MockPicker, error) {
	rows, err := s.pool.Query(ctx, selectPickersSQL, profileID)
	if err != nil {
		return nil, fmt.Errorf("query pickers of profile %d: %w", profileID, err)
	}
	defer rows.Close()

	var out []restmodel.MockPicker
	for rows.Next() {
		var p restmodel.MockPicker
		if err := rows.Scan(&p.ID, &p.MockProfileID, &p.ResponseID, &p.Position, &p.BodyPattern, &p.URLPattern, &p.InstanceIDs); err != nil {
			return nil, fmt.Errorf("scan picker: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pickers: %w", err)
	}
	return out, nil
}

// GetInstances reads instances and returns them in the order of ids.
func (s *PostgresStore) GetInstances(ctx context.Context, ids []int64) ([]restmodel.ResourceInstance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, selectInstancesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]restmodel.ResourceInstance, len(ids))
	for rows.Next() {
		var (
			inst    restmodel.ResourceInstance
			content []byte
		)
		if err := rows.Scan(&inst.ID, &inst.ResourceID, &inst.Name, &content); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		if len(content) > 0 {
			if err := json.Unmarshal(content, &inst.Content); err != nil {
				return nil, fmt.Errorf("decode content of instance %d: %w", inst.ID, err)
			}
		}
		byID[inst.ID] = inst
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}

	out := make([]restmodel.ResourceInstance, 0, len(ids))
	for _, id := range ids {
		if inst, ok := byID[id]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

// pgError unwraps a Postgres error with the given SQLSTATE.
func pgError(err error, code string) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr, true
	}
	return nil, false
}
