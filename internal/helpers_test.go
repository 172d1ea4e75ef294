package internal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
	"github.com/stretchr/testify/require"
)

func loadPokedex(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := LoadFixtureFile(filepath.Join("testdata", "pokedex.yaml"))
	require.NoError(t, err)
	return store
}

func schemaJSON(t *testing.T, s *jsonschema.Schema) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}

// toJSONValue normalizes a Go value to the shapes encoding/json decodes into.
func toJSONValue(t *testing.T, v any) any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// stubReader serves hand-built representations, including ones a store
// would refuse to hold.
type stubReader map[int64]*restmodel.Representation

func (r stubReader) GetRepresentation(ctx context.Context, id int64) (*restmodel.Representation, error) {
	rep, ok := r[id]
	if !ok {
		return nil, restmodel.NewNotFoundError("representation", id)
	}
	return rep, nil
}

func (r stubReader) ListRepresentations(ctx context.Context, resourceID int64) ([]restmodel.Representation, error) {
	var out []restmodel.Representation
	for _, rep := range r {
		if rep.ResourceID == resourceID {
			out = append(out, *rep)
		}
	}
	return out, nil
}

func int64p(v int64) *int64 { return &v }

func boolp(v bool) *bool { return &v }

func intp(v int) *int { return &v }
