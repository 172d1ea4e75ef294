package internal

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
)

// Compiler turns representations into JSON Schema documents.
type Compiler struct {
	reader restmodel.GraphReader
	order  restmodel.AttributeOrder
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithAttributeOrder overrides the alphabetical property order.
func WithAttributeOrder(order restmodel.AttributeOrder) CompilerOption {
	return func(c *Compiler) {
		if order != nil {
			c.order = order
		}
	}
}

// NewCompiler creates a compiler reading the graph through reader.
func NewCompiler(reader restmodel.GraphReader, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		reader: reader,
		order:  restmodel.AlphabeticalOrder,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile loads the representation and compiles it.
func (c *Compiler) Compile(ctx context.Context, representationID int64, opts restmodel.CompileOptions) (*jsonschema.Schema, error) {
	rep, err := c.reader.GetRepresentation(ctx, representationID)
	if err != nil {
		return nil, fmt.Errorf("load representation %d: %w", representationID, err)
	}
	return c.CompileRepresentation(ctx, rep, opts)
}

// CompileRepresentation compiles an already loaded representation. Nested
// targets are read through the compiler's GraphReader.
func (c *Compiler) CompileRepresentation(ctx context.Context, rep *restmodel.Representation, opts restmodel.CompileOptions) (*jsonschema.Schema, error) {
	root, err := c.plan(ctx, rep)
	if err != nil {
		return nil, err
	}

	obj, err := objectSchema(root)
	if err != nil {
		return nil, err
	}

	doc := wrapSchema(obj, opts)
	doc.Title = rep.Resource.Name + " - " + rep.Name
	if rep.Resource.Description != "" {
		doc.Description = rep.Resource.Description
	}
	return doc, nil
}

// wrapSchema applies the root key and collection wrapping. Only the bare
// object case keeps the object's own required list at the top level.
func wrapSchema(obj *jsonschema.Schema, opts restmodel.CompileOptions) *jsonschema.Schema {
	if opts.RootKey == "" {
		if opts.IsCollection {
			return &jsonschema.Schema{Type: "array", Items: obj}
		}
		return obj
	}

	inner := obj
	if opts.IsCollection {
		inner = &jsonschema.Schema{Type: "array", Items: obj}
	}
	return &jsonschema.Schema{
		Type:          "object",
		Properties:    map[string]*jsonschema.Schema{opts.RootKey: inner},
		PropertyOrder: []string{opts.RootKey},
		Required:      []string{opts.RootKey},
	}
}

// objectSchema emits {type: object, properties, required?} for a plan node.
func objectSchema(node *planNode) (*jsonschema.Schema, error) {
	obj := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(node.fields)),
	}
	for _, f := range node.fields {
		prop, err := attributeSchema(f)
		if err != nil {
			return nil, err
		}
		obj.Properties[f.attr.Name] = prop
		obj.PropertyOrder = append(obj.PropertyOrder, f.attr.Name)
		if f.row.IsRequired && !slices.Contains(obj.Required, f.attr.Name) {
			obj.Required = append(obj.Required, f.attr.Name)
		}
	}
	return obj, nil
}

func attributeSchema(f planField) (*jsonschema.Schema, error) {
	var (
		s   *jsonschema.Schema
		err error
	)
	switch f.kind {
	case fieldPrimitive:
		s, err = primitiveSchema(f.attr, f.row)
		if err != nil {
			return nil, err
		}
	case fieldStub:
		s = nestedHeader(f)
	case fieldExpanded:
		s, err = objectSchema(f.child)
		if err != nil {
			return nil, err
		}
		header := nestedHeader(f)
		s.Title = header.Title
		s.Description = header.Description
	}

	if faker := f.row.EffectiveFaker(f.attr); faker != "" {
		s.Extra = map[string]any{"faker": faker}
	}

	if f.attr.IsArray {
		s = &jsonschema.Schema{Type: "array", Items: s}
	}

	if f.row.EffectiveNullable(f.attr) {
		s = &jsonschema.Schema{OneOf: []*jsonschema.Schema{s, {Type: "null"}}}
	}
	return s, nil
}

func nestedHeader(f planField) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Title:       f.targetName,
		Description: f.attr.Description,
	}
}

func primitiveSchema(attr *restmodel.ResourceAttribute, row restmodel.AttributeRepresentation) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{
		Type:        string(attr.PrimitiveType),
		Description: attr.Description,
	}

	if row.CustomPattern != "" {
		s.Pattern = row.CustomPattern
	} else if scheme := attr.Scheme; scheme != nil {
		switch scheme.Kind {
		case restmodel.SchemeFormat:
			s.Format = scheme.Name
		case restmodel.SchemePattern:
			s.Pattern = scheme.Regexp
		}
	}

	raw := restmodel.SplitEnum(row.CustomEnum)
	if raw == nil {
		raw = attr.Enum
	}
	if len(raw) > 0 {
		enum, err := restmodel.CastEnum(raw, attr.PrimitiveType)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attr.Name, err)
		}
		s.Enum = enum
	}

	s.MinLength = attr.MinLength
	s.MaxLength = attr.MaxLength
	s.Minimum = attr.Minimum
	s.Maximum = attr.Maximum
	return s, nil
}
