package restmodel

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// GraphReader is the read side of the entity graph.
type GraphReader interface {
	// GetRepresentation returns the representation with its Resource and the
	// resource's attributes populated.
	GetRepresentation(ctx context.Context, id int64) (*Representation, error)
	// ListRepresentations returns the representations of a resource.
	ListRepresentations(ctx context.Context, resourceID int64) ([]Representation, error)
}

// GraphWriter mutates the entity graph.
type GraphWriter interface {
	// SaveRepresentationRows inserts rows with a zero ID, updates the others and
	// removes rows marked Destroy.
	SaveRepresentationRows(ctx context.Context, representationID int64, rows []AttributeRepresentation) error
	DeleteResource(ctx context.Context, id int64) error
	DeleteRepresentation(ctx context.Context, id int64) error
	SaveMockPicker(ctx context.Context, picker *MockPicker) error
}

// MockRepository reads the mock serving side of the graph.
type MockRepository interface {
	GetMockProfile(ctx context.Context, id int64) (*MockProfile, error)
	// ListRoutes returns the project's routes with their responses.
	ListRoutes(ctx context.Context, projectID int64) ([]Route, error)
	// ListPickers returns the profile's pickers ordered by (Position, ID).
	ListPickers(ctx context.Context, profileID int64) ([]MockPicker, error)
	// GetInstances returns the instances in the order of ids.
	GetInstances(ctx context.Context, ids []int64) ([]ResourceInstance, error)
}

// GraphStore is the full persistence contract.
type GraphStore interface {
	GraphReader
	GraphWriter
	MockRepository
}

// InstanceGenerator fabricates a JSON value conforming to a schema.
type InstanceGenerator interface {
	Generate(ctx context.Context, schema *jsonschema.Schema) (any, error)
}

// SchemaCache stores compiled schema documents.
type SchemaCache interface {
	Get(ctx context.Context, key string) (*jsonschema.Schema, bool, error)
	Set(ctx context.Context, key string, schema *jsonschema.Schema) error
	// Invalidate drops every cached document.
	Invalidate(ctx context.Context) error
}

// ArtifactPublisher uploads a rendered artifact and returns where it landed.
type ArtifactPublisher interface {
	Publish(ctx context.Context, key string, document []byte) (string, error)
}

// ModelService is the entry point used by the HTTP surface and the tools.
type ModelService interface {
	CompileSchema(ctx context.Context, representationID int64, opts CompileOptions) (*jsonschema.Schema, error)
	EditorRows(ctx context.Context, representationID int64) ([]EditorRow, error)
	UpdateRepresentationRows(ctx context.Context, representationID int64, rows []AttributeRepresentation) error
	DeleteResource(ctx context.Context, id int64) error
	DeleteRepresentation(ctx context.Context, id int64) error
	SaveMockPicker(ctx context.Context, picker *MockPicker) error
	ServeMock(ctx context.Context, req MockRequest) (*MockResult, error)
}
