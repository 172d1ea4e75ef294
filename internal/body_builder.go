package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
)

type instanceReader interface {
	GetInstances(ctx context.Context, ids []int64) ([]restmodel.ResourceInstance, error)
}

// BodyBuilder renders mock response bodies, either from a picker's bound
// instances or from the instance generator.
type BodyBuilder struct {
	reader    restmodel.GraphReader
	instances instanceReader
	compiler  *Compiler
	generator restmodel.InstanceGenerator
	validate  bool
}

// BodyBuilderOption configures a BodyBuilder.
type BodyBuilderOption func(*BodyBuilder)

// WithBodyValidation checks every built body against the response schema.
func WithBodyValidation(enabled bool) BodyBuilderOption {
	return func(b *BodyBuilder) {
		b.validate = enabled
	}
}

// NewBodyBuilder creates a body builder sharing the compiler's traversal rules.
func NewBodyBuilder(reader restmodel.GraphReader, instances instanceReader, compiler *Compiler, generator restmodel.InstanceGenerator, opts ...BodyBuilderOption) *BodyBuilder {
	b := &BodyBuilder{
		reader:    reader,
		instances: instances,
		compiler:  compiler,
		generator: generator,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SchemaFor returns the schema a response body conforms to: the compiled
// representation when the response has one, else its raw body schema. A
// response with neither has no schema.
func (b *BodyBuilder) SchemaFor(ctx context.Context, resp *restmodel.Response) (*jsonschema.Schema, error) {
	if resp.RepresentationID != nil {
		return b.compiler.Compile(ctx, *resp.RepresentationID, resp.Options())
	}
	if resp.BodySchema != "" {
		schema, err := restmodel.ParseSchema(resp.BodySchema)
		if err != nil {
			return nil, fmt.Errorf("response %d body schema: %w", resp.ID, err)
		}
		return schema, nil
	}
	return nil, nil
}

// Build renders the body for a response. Without a picker, or with a picker
// that has no bound instances, the body comes from the generator.
func (b *BodyBuilder) Build(ctx context.Context, resp *restmodel.Response, picker *restmodel.MockPicker) (any, error) {
	if picker == nil || len(picker.InstanceIDs) == 0 {
		return b.generate(ctx, resp)
	}

	instances, err := b.instances.GetInstances(ctx, picker.InstanceIDs)
	if err != nil {
		return nil, fmt.Errorf("load instances of picker %d: %w", picker.ID, err)
	}
	if len(instances) == 0 {
		return b.generate(ctx, resp)
	}

	bodies, err := b.render(ctx, resp, instances)
	if err != nil {
		return nil, err
	}
	body := wrapBody(bodies, resp.Options())

	if b.validate {
		if err := b.check(ctx, resp, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (b *BodyBuilder) render(ctx context.Context, resp *restmodel.Response, instances []restmodel.ResourceInstance) ([]any, error) {
	bodies := make([]any, 0, len(instances))
	if resp.RepresentationID == nil {
		for _, inst := range instances {
			bodies = append(bodies, inst.Content)
		}
		return bodies, nil
	}

	rep, err := b.reader.GetRepresentation(ctx, *resp.RepresentationID)
	if err != nil {
		return nil, fmt.Errorf("load representation %d: %w", *resp.RepresentationID, err)
	}
	root, err := b.compiler.plan(ctx, rep)
	if err != nil {
		return nil, err
	}
	for _, inst := range instances {
		bodies = append(bodies, renderNode(root, inst.Content))
	}
	return bodies, nil
}

// renderNode projects stored content through a plan node. Keys the instance
// does not have are omitted; values of stub fields pass through unchanged.
func renderNode(node *planNode, content map[string]any) map[string]any {
	out := make(map[string]any, len(node.fields))
	for _, f := range node.fields {
		value, ok := content[f.attr.Name]
		if !ok {
			continue
		}
		if f.kind != fieldExpanded {
			out[f.attr.Name] = value
			continue
		}
		if f.attr.IsArray {
			out[f.attr.Name] = renderList(f.child, value)
			continue
		}
		out[f.attr.Name] = renderValue(f.child, value)
	}
	return out
}

func renderList(node *planNode, value any) any {
	items, ok := value.([]any)
	if !ok {
		return value
	}
	rendered := make([]any, len(items))
	for i, item := range items {
		rendered[i] = renderValue(node, item)
	}
	return rendered
}

func renderValue(node *planNode, value any) any {
	if m, ok := value.(map[string]any); ok {
		return renderNode(node, m)
	}
	return value
}

// wrapBody mirrors wrapSchema for rendered instances.
func wrapBody(bodies []any, opts restmodel.CompileOptions) any {
	var body any
	if opts.IsCollection {
		body = bodies
	} else {
		body = bodies[0]
	}
	if opts.RootKey != "" {
		body = map[string]any{opts.RootKey: body}
	}
	return body
}

func (b *BodyBuilder) generate(ctx context.Context, resp *restmodel.Response) (any, error) {
	schema, err := b.SchemaFor(ctx, resp)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, nil
	}
	body, err := b.generator.Generate(ctx, schema)
	if err != nil {
		var rmErr *restmodel.Error
		if errors.As(err, &rmErr) && rmErr.Type == restmodel.ErrorTypeGeneratorUnavailable {
			return nil, err
		}
		return nil, restmodel.NewGeneratorUnavailableError("generate instance", err)
	}
	if b.validate {
		if err := validateBody(schema, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (b *BodyBuilder) check(ctx context.Context, resp *restmodel.Response, body any) error {
	schema, err := b.SchemaFor(ctx, resp)
	if err != nil || schema == nil {
		return err
	}
	return validateBody(schema, body)
}

func validateBody(schema *jsonschema.Schema, body any) error {
	if err := restmodel.ValidateInstance(schema, body); err != nil {
		return restmodel.NewGraphIntegrityError(restmodel.ErrCodeBodyShapeMismatch,
			"mock body does not conform to the response schema").WithCause(err)
	}
	return nil
}
