package restmodel

import "slices"

// PrimitiveType is the JSON type of a non-nested attribute.
type PrimitiveType string

const (
	PrimitiveString  PrimitiveType = "string"
	PrimitiveInteger PrimitiveType = "integer"
	PrimitiveNumber  PrimitiveType = "number"
	PrimitiveBoolean PrimitiveType = "boolean"
	PrimitiveNull    PrimitiveType = "null"
)

// Valid reports whether p is one of the supported primitive types.
func (p PrimitiveType) Valid() bool {
	switch p {
	case PrimitiveString, PrimitiveInteger, PrimitiveNumber, PrimitiveBoolean, PrimitiveNull:
		return true
	}
	return false
}

// AttributeKind distinguishes primitive attributes from nested object attributes.
type AttributeKind int

const (
	AttributeKindInvalid AttributeKind = iota
	AttributeKindPrimitive
	AttributeKindNested
)

func (k AttributeKind) String() string {
	switch k {
	case AttributeKindPrimitive:
		return "primitive"
	case AttributeKindNested:
		return "nested"
	default:
		return "invalid"
	}
}

// SchemeKind tells whether a Scheme contributes a JSON Schema format or a pattern.
type SchemeKind string

const (
	SchemeFormat  SchemeKind = "format"
	SchemePattern SchemeKind = "pattern"
)

// Scheme is a reusable string constraint, e.g. "email" (format) or "zip-code" (pattern).
type Scheme struct {
	ID     int64      `json:"id" yaml:"id"`
	Name   string     `json:"name" yaml:"name"`
	Kind   SchemeKind `json:"kind" yaml:"kind"`
	Regexp string     `json:"regexp,omitempty" yaml:"regexp,omitempty"`
}

// Resource is a modeled entity type.
type Resource struct {
	ID          int64               `json:"id" yaml:"id"`
	ProjectID   int64               `json:"project_id" yaml:"project_id"`
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes  []ResourceAttribute `json:"attributes" yaml:"attributes"`
}

// Attribute returns the attribute with the given id.
func (r *Resource) Attribute(id int64) (*ResourceAttribute, bool) {
	for i := range r.Attributes {
		if r.Attributes[i].ID == id {
			return &r.Attributes[i], true
		}
	}
	return nil, false
}

// AttributeByName returns the attribute with the given name.
func (r *Resource) AttributeByName(name string) (*ResourceAttribute, bool) {
	for i := range r.Attributes {
		if r.Attributes[i].Name == name {
			return &r.Attributes[i], true
		}
	}
	return nil, false
}

// ResourceAttribute is a typed field of a Resource. Exactly one of PrimitiveType
// and NestedResourceID is set.
type ResourceAttribute struct {
	ID               int64         `json:"id" yaml:"id"`
	ResourceID       int64         `json:"resource_id" yaml:"resource_id"`
	Name             string        `json:"name" yaml:"name"`
	PrimitiveType    PrimitiveType `json:"primitive_type,omitempty" yaml:"primitive_type,omitempty"`
	NestedResourceID *int64        `json:"nested_resource_id,omitempty" yaml:"nested_resource_id,omitempty"`
	IsArray          bool          `json:"is_array" yaml:"is_array"`
	Nullable         bool          `json:"nullable" yaml:"nullable"`
	Enum             []string      `json:"enum,omitempty" yaml:"enum,omitempty"`
	Scheme           *Scheme       `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	MinLength        *int          `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength        *int          `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Minimum          *float64      `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum          *float64      `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Description      string        `json:"description,omitempty" yaml:"description,omitempty"`
	Faker            string        `json:"faker,omitempty" yaml:"faker,omitempty"`
}

// Kind returns the attribute variant. An attribute with both or neither of
// PrimitiveType and NestedResourceID set is AttributeKindInvalid.
func (a *ResourceAttribute) Kind() AttributeKind {
	hasPrimitive := a.PrimitiveType != ""
	hasNested := a.NestedResourceID != nil
	switch {
	case hasPrimitive && !hasNested:
		return AttributeKindPrimitive
	case hasNested && !hasPrimitive:
		return AttributeKindNested
	default:
		return AttributeKindInvalid
	}
}

// Representation is a named view of one Resource. Resource is populated by
// readers together with its attributes.
type Representation struct {
	ID          int64                     `json:"id" yaml:"id"`
	ResourceID  int64                     `json:"resource_id" yaml:"resource_id"`
	Name        string                    `json:"name" yaml:"name"`
	Description string                    `json:"description,omitempty" yaml:"description,omitempty"`
	Resource    *Resource                 `json:"resource,omitempty" yaml:"-"`
	Rows        []AttributeRepresentation `json:"rows" yaml:"rows"`
}

// Row returns the stored join row for the attribute, if any.
func (r *Representation) Row(attributeID int64) (*AttributeRepresentation, bool) {
	for i := range r.Rows {
		if r.Rows[i].AttributeID == attributeID {
			return &r.Rows[i], true
		}
	}
	return nil, false
}

// AttributeRepresentation binds one attribute to one representation and carries
// the representation's overrides for it.
type AttributeRepresentation struct {
	ID                     int64  `json:"id,omitempty" yaml:"id,omitempty"`
	AttributeID            int64  `json:"attribute_id" yaml:"attribute_id"`
	RepresentationID       int64  `json:"representation_id" yaml:"representation_id"`
	CustomNullable         *bool  `json:"custom_nullable,omitempty" yaml:"custom_nullable,omitempty"`
	CustomEnum             string `json:"custom_enum,omitempty" yaml:"custom_enum,omitempty"`
	CustomPattern          string `json:"custom_pattern,omitempty" yaml:"custom_pattern,omitempty"`
	CustomFaker            string `json:"custom_faker,omitempty" yaml:"custom_faker,omitempty"`
	IsRequired             bool   `json:"is_required" yaml:"is_required"`
	TargetRepresentationID *int64 `json:"resource_representation_id,omitempty" yaml:"resource_representation_id,omitempty"`
	Destroy                bool   `json:"_destroy,omitempty" yaml:"-"`
}

// DefaultRow is the row a representation behaves as having for an attribute it
// has not customized.
func DefaultRow(representationID, attributeID int64) AttributeRepresentation {
	return AttributeRepresentation{
		AttributeID:      attributeID,
		RepresentationID: representationID,
	}
}

// Stored reports whether the row has been persisted.
func (r AttributeRepresentation) Stored() bool {
	return r.ID != 0
}

// EffectiveNullable resolves the row's nullability override against the attribute.
func (r AttributeRepresentation) EffectiveNullable(attr *ResourceAttribute) bool {
	if r.CustomNullable != nil {
		return *r.CustomNullable
	}
	return attr.Nullable
}

// EffectiveFaker resolves the row's generator hint against the attribute.
func (r AttributeRepresentation) EffectiveFaker(attr *ResourceAttribute) string {
	if r.CustomFaker != "" {
		return r.CustomFaker
	}
	return attr.Faker
}

// CompileOptions controls top-level wrapping of a compiled schema or mock body.
type CompileOptions struct {
	IsCollection bool   `json:"is_collection"`
	RootKey      string `json:"root_key,omitempty"`
}

// AttributeOrder sorts attributes in place into the order properties are emitted.
type AttributeOrder func(attrs []*ResourceAttribute)

// AlphabeticalOrder orders attributes by name, breaking ties by id.
func AlphabeticalOrder(attrs []*ResourceAttribute) {
	slices.SortStableFunc(attrs, func(a, b *ResourceAttribute) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// DeclarationOrder keeps attributes in the order the resource declares them.
func DeclarationOrder(attrs []*ResourceAttribute) {}

// EditorRow is the representation editor's view of one attribute.
type EditorRow struct {
	Attribute              ResourceAttribute       `json:"attribute"`
	Row                    AttributeRepresentation `json:"row"`
	Selected               bool                    `json:"selected"`
	TargetRepresentationID *int64                  `json:"resource_representation_id,omitempty"`
	Candidates             []RepresentationRef     `json:"candidates,omitempty"`
}

// RepresentationRef names a representation a nested attribute may point to.
type RepresentationRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
