package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
)

type schemaCompiler interface {
	CompileSchema(ctx context.Context, representationID int64, opts restmodel.CompileOptions) (*jsonschema.Schema, error)
}

// SchemaKey is the object key of a compiled representation document.
func SchemaKey(representationID int64, opts restmodel.CompileOptions) string {
	key := fmt.Sprintf("representations/%d", representationID)
	if opts.IsCollection {
		key += "-collection"
	}
	if opts.RootKey != "" {
		key += "-" + opts.RootKey
	}
	return key + ".json"
}

// PublishSchemas compiles each representation and publishes the documents,
// returning their locations in input order. It stops at the first failure.
func PublishSchemas(
	ctx context.Context,
	compiler schemaCompiler,
	publisher restmodel.ArtifactPublisher,
	representationIDs []int64,
	opts restmodel.CompileOptions,
) ([]string, error) {
	locations := make([]string, 0, len(representationIDs))
	for _, id := range representationIDs {
		schema, err := compiler.CompileSchema(ctx, id, opts)
		if err != nil {
			return locations, fmt.Errorf("compile representation %d: %w", id, err)
		}
		document, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return locations, fmt.Errorf("encode representation %d: %w", id, err)
		}
		location, err := publisher.Publish(ctx, SchemaKey(id, opts), document)
		if err != nil {
			return locations, fmt.Errorf("publish representation %d: %w", id, err)
		}
		locations = append(locations, location)
	}
	return locations, nil
}
