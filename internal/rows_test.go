package internal

import (
	"testing"

	"github.com/lychee-technology/restmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsFixture() *restmodel.Representation {
	res := &restmodel.Resource{ID: 1, Name: "Pokemon", Attributes: []restmodel.ResourceAttribute{
		{ID: 3, ResourceID: 1, Name: "weight", PrimitiveType: restmodel.PrimitiveNumber},
		{ID: 1, ResourceID: 1, Name: "id", PrimitiveType: restmodel.PrimitiveInteger},
		{ID: 2, ResourceID: 1, Name: "nature", NestedResourceID: int64p(9)},
	}}
	return &restmodel.Representation{ID: 10, ResourceID: 1, Name: "r", Resource: res, Rows: []restmodel.AttributeRepresentation{
		{ID: 100, AttributeID: 3, RepresentationID: 10, IsRequired: true},
		{ID: 101, AttributeID: 2, RepresentationID: 10, TargetRepresentationID: int64p(90)},
		{ID: 102, AttributeID: 1, RepresentationID: 10, Destroy: true},
	}}
}

func TestRowFor(t *testing.T) {
	rep := rowsFixture()

	stored := RowFor(rep, &rep.Resource.Attributes[0])
	assert.Equal(t, int64(100), stored.ID)
	assert.True(t, stored.IsRequired)

	rep.Rows = rep.Rows[:2]
	def := RowFor(rep, &rep.Resource.Attributes[1])
	assert.False(t, def.Stored())
	assert.Equal(t, restmodel.DefaultRow(10, 1), def)
}

func TestSelectedRows(t *testing.T) {
	tests := []struct {
		name  string
		order restmodel.AttributeOrder
		want  []string
	}{
		{"alphabetical", restmodel.AlphabeticalOrder, []string{"nature", "weight"}},
		{"declaration", restmodel.DeclarationOrder, []string{"weight", "nature"}},
		{"nil order falls back to alphabetical", nil, []string{"nature", "weight"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := SelectedRows(rowsFixture(), tt.order)
			require.NoError(t, err)
			var names []string
			for _, s := range selected {
				names = append(names, s.Attribute.Name)
				assert.Equal(t, s.Attribute.ID, s.Row.AttributeID)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSelectedRows_ForeignRow(t *testing.T) {
	rep := rowsFixture()
	rep.Rows = append(rep.Rows, restmodel.AttributeRepresentation{ID: 200, AttributeID: 77})

	_, err := SelectedRows(rep, nil)
	require.Error(t, err)
	var rmErr *restmodel.Error
	require.ErrorAs(t, err, &rmErr)
	assert.Equal(t, restmodel.ErrCodeForeignAttribute, rmErr.Code)
}

func TestEditorRows(t *testing.T) {
	rep := rowsFixture()
	candidates := map[int64][]restmodel.Representation{
		9: {{ID: 90, Name: "summary"}, {ID: 91, Name: "full"}},
	}

	rows := EditorRows(rep, candidates, restmodel.AlphabeticalOrder)
	require.Len(t, rows, 3)

	assert.Equal(t, "id", rows[0].Attribute.Name)
	assert.False(t, rows[0].Selected)
	assert.Empty(t, rows[0].Candidates)

	assert.Equal(t, "nature", rows[1].Attribute.Name)
	assert.True(t, rows[1].Selected)
	assert.Equal(t, int64p(90), rows[1].TargetRepresentationID)
	assert.Equal(t, []restmodel.RepresentationRef{{ID: 90, Name: "summary"}, {ID: 91, Name: "full"}}, rows[1].Candidates)

	assert.Equal(t, "weight", rows[2].Attribute.Name)
	assert.True(t, rows[2].Selected)
	assert.True(t, rows[2].Row.IsRequired)
}

func TestEditorRows_DefaultsForMissingRows(t *testing.T) {
	rep := rowsFixture()
	rep.Rows = nil

	rows := EditorRows(rep, nil, nil)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.False(t, r.Selected, r.Attribute.Name)
		assert.Equal(t, restmodel.DefaultRow(rep.ID, r.Attribute.ID), r.Row)
	}
}
