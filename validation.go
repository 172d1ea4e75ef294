package restmodel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EnumSeparator separates values in a row's custom enum override.
const EnumSeparator = ", "

// SplitEnum splits a custom enum override. A blank override yields nil.
func SplitEnum(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, EnumSeparator)
}

// CastEnum converts raw enum strings to values of the primitive type and drops
// duplicates produced by the conversion, keeping first occurrences.
func CastEnum(values []string, t PrimitiveType) ([]any, error) {
	out := make([]any, 0, len(values))
	seen := make(map[any]bool, len(values))
	for _, raw := range values {
		var v any
		switch t {
		case PrimitiveInteger:
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, NewGraphIntegrityError(ErrCodeInvalidEnumValue,
					fmt.Sprintf("enum value %q is not an integer", raw)).WithCause(err)
			}
			v = n
		case PrimitiveNumber:
			f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, NewGraphIntegrityError(ErrCodeInvalidEnumValue,
					fmt.Sprintf("enum value %q is not a number", raw)).WithCause(err)
			}
			v = f
		case PrimitiveNull:
			v = nil
		default:
			v = raw
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// ValidatePattern compiles a user supplied regular expression. Blank patterns
// are valid.
func ValidatePattern(field, pattern string) error {
	if pattern == "" {
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return NewPatternCompileError(field, pattern, err)
	}
	return nil
}

// ValidateResource checks the attribute invariants of a resource.
func ValidateResource(r *Resource) error {
	names := make(map[string]bool, len(r.Attributes))
	for i := range r.Attributes {
		attr := &r.Attributes[i]
		if attr.Name == "" {
			return NewValidationError("name", "attribute name is required")
		}
		if names[attr.Name] {
			return NewGraphIntegrityError(ErrCodeDuplicateName,
				fmt.Sprintf("resource %q has more than one attribute named %q", r.Name, attr.Name)).
				WithField(attr.Name)
		}
		names[attr.Name] = true

		switch attr.Kind() {
		case AttributeKindPrimitive:
			if !attr.PrimitiveType.Valid() {
				return NewValidationError(attr.Name, fmt.Sprintf("unknown primitive type %q", attr.PrimitiveType))
			}
			if _, err := CastEnum(attr.Enum, attr.PrimitiveType); err != nil {
				return err
			}
		case AttributeKindNested:
		default:
			return NewGraphIntegrityError(ErrCodeAmbiguousAttributeKind,
				fmt.Sprintf("attribute %q must set exactly one of primitive type and nested resource", attr.Name)).
				WithField(attr.Name)
		}

		if s := attr.Scheme; s != nil {
			switch s.Kind {
			case SchemeFormat:
			case SchemePattern:
				if err := ValidatePattern(attr.Name+".scheme", s.Regexp); err != nil {
					return err
				}
			default:
				return NewValidationError(attr.Name+".scheme", fmt.Sprintf("unknown scheme kind %q", s.Kind))
			}
		}
	}
	return nil
}

// ValidateRepresentationRows checks a batch of rows against the
// representation's resource: attributes must belong to it, each attribute may
// appear once, and overrides must be well formed. Destroyed rows are only
// checked for ownership.
func ValidateRepresentationRows(rep *Representation, rows []AttributeRepresentation) error {
	if rep.Resource == nil {
		return NewGraphIntegrityError(ErrCodeDanglingReference,
			fmt.Sprintf("representation %d has no resource", rep.ID))
	}
	seen := make(map[int64]bool, len(rows))
	for _, row := range rows {
		attr, ok := rep.Resource.Attribute(row.AttributeID)
		if !ok {
			return NewGraphIntegrityError(ErrCodeForeignAttribute,
				fmt.Sprintf("attribute %d does not belong to resource %q", row.AttributeID, rep.Resource.Name))
		}
		if row.Destroy {
			continue
		}
		if seen[row.AttributeID] {
			return NewGraphIntegrityError(ErrCodeDuplicateRow,
				fmt.Sprintf("attribute %q appears more than once in representation %q", attr.Name, rep.Name)).
				WithField(attr.Name)
		}
		seen[row.AttributeID] = true

		if err := ValidatePattern(attr.Name+".custom_pattern", row.CustomPattern); err != nil {
			return err
		}
		if attr.Kind() == AttributeKindPrimitive {
			if _, err := CastEnum(SplitEnum(row.CustomEnum), attr.PrimitiveType); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateMockPicker checks a picker before it is stored.
func ValidateMockPicker(p *MockPicker) error {
	if p.MockProfileID == 0 {
		return NewValidationError("mock_profile_id", "is required")
	}
	if p.ResponseID == 0 {
		return NewValidationError("response_id", "is required")
	}
	if err := ValidatePattern("body_pattern", p.BodyPattern); err != nil {
		return err
	}
	return ValidatePattern("url_pattern", p.URLPattern)
}

// ValidateRoutes checks the routes of one or more resources: name, method and
// url are required, (resource, name) and (resource, method, url) are unique,
// and a request body schema must be a valid JSON Schema document.
func ValidateRoutes(routes []Route) error {
	type methodURL struct {
		resourceID int64
		method     string
		url        string
	}
	type resourceName struct {
		resourceID int64
		name       string
	}
	byName := make(map[resourceName]bool, len(routes))
	byEndpoint := make(map[methodURL]bool, len(routes))

	for _, route := range routes {
		switch {
		case route.Name == "":
			return NewValidationError("name", "can't be blank")
		case route.HTTPMethod == "":
			return NewValidationError("http_method", "can't be blank")
		case route.URL == "":
			return NewValidationError("url", "can't be blank")
		}

		nk := resourceName{route.ResourceID, route.Name}
		if byName[nk] {
			return NewValidationError("name", fmt.Sprintf("route %q is already taken", route.Name))
		}
		byName[nk] = true

		ek := methodURL{route.ResourceID, strings.ToUpper(route.HTTPMethod), route.URL}
		if byEndpoint[ek] {
			return NewValidationError("url", fmt.Sprintf("%s %s is already taken", ek.method, route.URL))
		}
		byEndpoint[ek] = true

		if route.RequestBodySchema != "" {
			if _, err := ParseSchema(route.RequestBodySchema); err != nil {
				return fmt.Errorf("route %q request_body_schema: %w", route.Name, err)
			}
		}
		for _, resp := range route.Responses {
			if resp.BodySchema != "" {
				if _, err := ParseSchema(resp.BodySchema); err != nil {
					return fmt.Errorf("route %q response %d body_schema: %w", route.Name, resp.ID, err)
				}
			}
		}
	}
	return nil
}
