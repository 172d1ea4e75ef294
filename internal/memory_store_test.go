package internal

import (
	"context"
	"testing"

	"github.com/lychee-technology/restmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LoadFixture(t *testing.T) {
	store := loadPokedex(t)
	ctx := context.Background()

	rep, err := store.GetRepresentation(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "default", rep.Name)
	require.NotNil(t, rep.Resource)
	assert.Equal(t, "Pokemon", rep.Resource.Name)
	assert.Len(t, rep.Resource.Attributes, 5)
	require.Len(t, rep.Rows, 4)
	for _, row := range rep.Rows {
		assert.True(t, row.Stored())
		assert.Equal(t, int64(101), row.RepresentationID)
	}

	reps, err := store.ListRepresentations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, int64(101), reps[0].ID)
	assert.Nil(t, reps[0].Rows)

	routes, err := store.ListRoutes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, routes, 3)
	assert.Equal(t, []int64{602, 603}, []int64{routes[1].Responses[0].ID, routes[1].Responses[1].ID})

	pickers, err := store.ListPickers(ctx, 701)
	require.NoError(t, err)
	var ids []int64
	for _, p := range pickers {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{901, 903, 902}, ids)

	instances, err := store.GetInstances(ctx, []int64{802, 999, 801})
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, int64(802), instances[0].ID)
	assert.Equal(t, int64(801), instances[1].ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := loadPokedex(t)
	ctx := context.Background()

	rep, err := store.GetRepresentation(ctx, 101)
	require.NoError(t, err)
	rep.Rows[0].IsRequired = false
	rep.Resource.Attributes[0].Name = "mutated"

	again, err := store.GetRepresentation(ctx, 101)
	require.NoError(t, err)
	assert.True(t, again.Rows[0].IsRequired)
	assert.Equal(t, "id", again.Resource.Attributes[0].Name)
}

func TestLoadFixture_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		errType restmodel.ErrorType
	}{
		{
			name: "ambiguous attribute",
			fixture: `
resources:
  - id: 1
    name: A
    attributes:
      - {id: 1, name: x, primitive_type: string, nested_resource_id: 1}`,
			errType: restmodel.ErrorTypeGraphIntegrity,
		},
		{
			name: "bad custom pattern",
			fixture: `
resources:
  - id: 1
    name: A
    attributes:
      - {id: 1, name: x, primitive_type: string}
representations:
  - id: 10
    resource_id: 1
    name: r
    rows:
      - {attribute_id: 1, custom_pattern: "[a-"}`,
			errType: restmodel.ErrorTypePatternCompile,
		},
		{
			name: "foreign target",
			fixture: `
resources:
  - id: 1
    name: A
    attributes:
      - {id: 1, name: child, nested_resource_id: 2}
  - id: 2
    name: B
  - id: 3
    name: C
representations:
  - {id: 10, resource_id: 1, name: r, rows: [{attribute_id: 1, resource_representation_id: 30}]}
  - {id: 30, resource_id: 3, name: c}`,
			errType: restmodel.ErrorTypeGraphIntegrity,
		},
		{
			name: "nested row without target",
			fixture: `
resources:
  - id: 1
    name: A
    attributes:
      - {id: 1, name: child, nested_resource_id: 2}
  - {id: 2, name: B}
representations:
  - {id: 10, resource_id: 1, name: r, rows: [{attribute_id: 1}]}`,
			errType: restmodel.ErrorTypeGraphIntegrity,
		},
		{
			name: "nested missing resource",
			fixture: `
resources:
  - id: 1
    name: A
    attributes:
      - {id: 1, name: child, nested_resource_id: 2}`,
			errType: restmodel.ErrorTypeGraphIntegrity,
		},
		{
			name: "response renders missing representation",
			fixture: `
resources:
  - {id: 1, name: A}
routes:
  - id: 1
    resource_id: 1
    name: a
    http_method: GET
    url: /a
    responses:
      - {id: 5, resource_representation_id: 99}`,
			errType: restmodel.ErrorTypeGraphIntegrity,
		},
		{
			name: "picker for missing response",
			fixture: `
mock_profiles:
  - {id: 1, project_id: 1, name: p}
mock_pickers:
  - {id: 1, mock_profile_id: 1, response_id: 42}`,
			errType: restmodel.ErrorTypeGraphIntegrity,
		},
		{
			name: "dangling resource",
			fixture: `
representations:
  - {id: 10, resource_id: 5, name: r}`,
			errType: restmodel.ErrorTypeGraphIntegrity,
		},
		{
			name: "duplicate route endpoint",
			fixture: `
resources:
  - {id: 1, name: A}
routes:
  - {id: 1, resource_id: 1, name: a, http_method: GET, url: /a}
  - {id: 2, resource_id: 1, name: b, http_method: get, url: /a}`,
			errType: restmodel.ErrorTypeValidation,
		},
		{
			name: "bad picker pattern",
			fixture: `
mock_pickers:
  - {id: 1, mock_profile_id: 1, response_id: 1, body_pattern: "(("}`,
			errType: restmodel.ErrorTypePatternCompile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixture([]byte(tt.fixture))
			require.Error(t, err)
			assert.Equal(t, tt.errType, restmodel.ErrorTypeOf(err))
		})
	}
}

func TestMemoryStore_SaveRepresentationRows(t *testing.T) {
	store := loadPokedex(t)
	ctx := context.Background()

	rep, err := store.GetRepresentation(ctx, 201)
	require.NoError(t, err)
	codeRow, ok := rep.Row(22)
	require.True(t, ok)

	err = store.SaveRepresentationRows(ctx, 201, []restmodel.AttributeRepresentation{
		{ID: codeRow.ID, AttributeID: 22, Destroy: true},
		{AttributeID: 21, IsRequired: false, CustomEnum: "fire, water"},
	})
	require.NoError(t, err)

	rep, err = store.GetRepresentation(ctx, 201)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, int64(21), rep.Rows[0].AttributeID)
	assert.Equal(t, "fire, water", rep.Rows[0].CustomEnum)
	assert.False(t, rep.Rows[0].IsRequired)

	err = store.SaveRepresentationRows(ctx, 201, []restmodel.AttributeRepresentation{{AttributeID: 22}})
	require.NoError(t, err)
	rep, err = store.GetRepresentation(ctx, 201)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	assert.True(t, rep.Rows[1].Stored())

	err = store.SaveRepresentationRows(ctx, 201, []restmodel.AttributeRepresentation{{ID: 12345, AttributeID: 99}})
	assert.True(t, restmodel.IsErrorType(err, restmodel.ErrorTypeNotFound))
}

func TestMemoryStore_SaveRepresentationRows_MissingTarget(t *testing.T) {
	store := loadPokedex(t)
	ctx := context.Background()

	err := store.SaveRepresentationRows(ctx, 101, []restmodel.AttributeRepresentation{{AttributeID: 15}})
	var rmErr *restmodel.Error
	require.ErrorAs(t, err, &rmErr)
	assert.Equal(t, restmodel.ErrCodeMissingTarget, rmErr.Code)
	assert.Equal(t, "trainer", rmErr.Field)

	// Destroying a nested row needs no target.
	rep, err := store.GetRepresentation(ctx, 101)
	require.NoError(t, err)
	weakness, ok := rep.Row(13)
	require.True(t, ok)
	require.NoError(t, store.SaveRepresentationRows(ctx, 101, []restmodel.AttributeRepresentation{
		{ID: weakness.ID, AttributeID: 13, Destroy: true},
	}))
}

func TestMemoryStore_DeleteGuards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		delete func(*MemoryStore) error
		code   string
	}{
		{"nested resource", func(s *MemoryStore) error { return s.DeleteResource(ctx, 2) }, restmodel.ErrCodeReferencedByAttribute},
		{"targeted representation", func(s *MemoryStore) error { return s.DeleteRepresentation(ctx, 201) }, restmodel.ErrCodeReferencedByRepresentation},
		{"rendered representation", func(s *MemoryStore) error { return s.DeleteRepresentation(ctx, 101) }, restmodel.ErrCodeReferencedByResponse},
		{"cyclic target", func(s *MemoryStore) error { return s.DeleteRepresentation(ctx, 102) }, restmodel.ErrCodeReferencedByRepresentation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := loadPokedex(t)
			err := tt.delete(store)
			require.Error(t, err)
			var rmErr *restmodel.Error
			require.ErrorAs(t, err, &rmErr)
			assert.Equal(t, restmodel.ErrorTypeDeleteConflict, rmErr.Type)
			assert.Equal(t, tt.code, rmErr.Code)
		})
	}
}

const cascadeFixture = `
resources:
  - id: 1
    project_id: 1
    name: Order
    attributes:
      - {id: 11, name: customer, nested_resource_id: 2}
  - id: 2
    project_id: 1
    name: Customer
    attributes:
      - {id: 21, name: name, primitive_type: string}
  - {id: 3, project_id: 1, name: Report}
representations:
  - {id: 10, resource_id: 1, name: full, rows: [{attribute_id: 11, resource_representation_id: 20}]}
  - {id: 20, resource_id: 2, name: brief, rows: [{attribute_id: 21}]}
routes:
  - id: 100
    resource_id: 1
    name: show
    http_method: GET
    url: /orders/:id
    responses:
      - {id: 110, status_code: 200, resource_representation_id: 10}
  - id: 300
    resource_id: 3
    name: top
    http_method: GET
    url: /reports/top
    responses:
      - {id: 310, status_code: 200, resource_representation_id: 20}
resource_instances:
  - {id: 50, resource_id: 1, content: {customer: {name: ada}}}
`

func TestMemoryStore_DeleteCascades(t *testing.T) {
	store, err := LoadFixture([]byte(cascadeFixture))
	require.NoError(t, err)
	ctx := context.Background()

	err = store.DeleteResource(ctx, 2)
	var rmErr *restmodel.Error
	require.ErrorAs(t, err, &rmErr)
	assert.Equal(t, restmodel.ErrCodeReferencedByAttribute, rmErr.Code)

	require.NoError(t, store.DeleteResource(ctx, 1))
	_, err = store.GetRepresentation(ctx, 10)
	assert.True(t, restmodel.IsErrorType(err, restmodel.ErrorTypeNotFound))
	instances, err := store.GetInstances(ctx, []int64{50})
	require.NoError(t, err)
	assert.Empty(t, instances)
	routes, err := store.ListRoutes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, int64(300), routes[0].ID)

	// The report route still renders Customer's representation.
	err = store.DeleteResource(ctx, 2)
	require.ErrorAs(t, err, &rmErr)
	assert.Equal(t, restmodel.ErrCodeReferencedByResponse, rmErr.Code)

	require.NoError(t, store.DeleteResource(ctx, 3))
	require.NoError(t, store.DeleteResource(ctx, 2))
	assert.True(t, restmodel.IsErrorType(store.DeleteResource(ctx, 2), restmodel.ErrorTypeNotFound))
}

func TestMemoryStore_SaveMockPicker(t *testing.T) {
	store := loadPokedex(t)
	ctx := context.Background()

	p := &restmodel.MockPicker{MockProfileID: 701, ResponseID: 604, Position: 5, InstanceIDs: []int64{802}}
	require.NoError(t, store.SaveMockPicker(ctx, p))
	assert.NotZero(t, p.ID)

	pickers, err := store.ListPickers(ctx, 701)
	require.NoError(t, err)
	require.Len(t, pickers, 4)
	assert.Equal(t, p.ID, pickers[3].ID)

	tests := []struct {
		name   string
		picker restmodel.MockPicker
	}{
		{"unknown profile", restmodel.MockPicker{MockProfileID: 1, ResponseID: 604}},
		{"unknown response", restmodel.MockPicker{MockProfileID: 701, ResponseID: 1}},
		{"unknown instance", restmodel.MockPicker{MockProfileID: 701, ResponseID: 604, InstanceIDs: []int64{5}}},
		{"unknown picker", restmodel.MockPicker{ID: 4242, MockProfileID: 701, ResponseID: 604}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SaveMockPicker(ctx, &tt.picker)
			assert.True(t, restmodel.IsErrorType(err, restmodel.ErrorTypeNotFound))
		})
	}
}
