package internal

import (
	"context"
	"fmt"

	"github.com/lychee-technology/restmodel"
)

type fieldKind int

const (
	fieldPrimitive fieldKind = iota
	// fieldExpanded is a nested attribute whose target is inlined.
	fieldExpanded
	// fieldStub is a nested attribute whose target was already visited.
	fieldStub
)

// planNode is one representation in the traversal, with the fields it emits.
type planNode struct {
	rep    *restmodel.Representation
	fields []planField
}

type planField struct {
	attr       *restmodel.ResourceAttribute
	row        restmodel.AttributeRepresentation
	kind       fieldKind
	targetName string
	child      *planNode
}

// traversal holds the state of one compilation: the visited representation
// ids and the representations read so far.
type traversal struct {
	ctx     context.Context
	reader  restmodel.GraphReader
	order   restmodel.AttributeOrder
	visited map[int64]struct{}
	loaded  map[int64]*restmodel.Representation
}

// plan walks the representation graph depth first. The visited set is shared
// by the whole walk, so reaching a representation a second time anywhere in
// the tree yields a stub.
func (c *Compiler) plan(ctx context.Context, rep *restmodel.Representation) (*planNode, error) {
	if rep.Resource == nil {
		return nil, restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
			fmt.Sprintf("representation %d has no resource", rep.ID))
	}
	t := &traversal{
		ctx:     ctx,
		reader:  c.reader,
		order:   c.order,
		visited: map[int64]struct{}{rep.ID: {}},
		loaded:  map[int64]*restmodel.Representation{rep.ID: rep},
	}
	return t.node(rep)
}

func (t *traversal) node(rep *restmodel.Representation) (*planNode, error) {
	selected, err := SelectedRows(rep, t.order)
	if err != nil {
		return nil, err
	}

	n := &planNode{rep: rep, fields: make([]planField, 0, len(selected))}
	for _, sel := range selected {
		f := planField{attr: sel.Attribute, row: sel.Row}
		switch sel.Attribute.Kind() {
		case restmodel.AttributeKindPrimitive:
			f.kind = fieldPrimitive
		case restmodel.AttributeKindNested:
			if err := t.nested(&f); err != nil {
				return nil, err
			}
		default:
			return nil, restmodel.NewGraphIntegrityError(restmodel.ErrCodeAmbiguousAttributeKind,
				fmt.Sprintf("attribute %q must set exactly one of primitive type and nested resource", sel.Attribute.Name)).
				WithField(sel.Attribute.Name)
		}
		n.fields = append(n.fields, f)
	}
	return n, nil
}

func (t *traversal) nested(f *planField) error {
	if f.row.TargetRepresentationID == nil {
		return restmodel.NewGraphIntegrityError(restmodel.ErrCodeMissingTarget,
			fmt.Sprintf("nested attribute %q has no target representation", f.attr.Name)).
			WithField(f.attr.Name)
	}
	targetID := *f.row.TargetRepresentationID

	target, err := t.load(targetID)
	if err != nil {
		return err
	}
	if target.ResourceID != *f.attr.NestedResourceID {
		return restmodel.NewGraphIntegrityError(restmodel.ErrCodeForeignTarget,
			fmt.Sprintf("attribute %q targets representation %d of another resource", f.attr.Name, targetID)).
			WithField(f.attr.Name)
	}
	f.targetName = target.Resource.Name

	if _, seen := t.visited[targetID]; seen {
		f.kind = fieldStub
		return nil
	}
	t.visited[targetID] = struct{}{}

	child, err := t.node(target)
	if err != nil {
		return err
	}
	f.kind = fieldExpanded
	f.child = child
	return nil
}

func (t *traversal) load(id int64) (*restmodel.Representation, error) {
	if rep, ok := t.loaded[id]; ok {
		return rep, nil
	}
	rep, err := t.reader.GetRepresentation(t.ctx, id)
	if err != nil {
		if restmodel.IsErrorType(err, restmodel.ErrorTypeNotFound) {
			return nil, restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
				fmt.Sprintf("representation %d does not exist", id)).WithCause(err)
		}
		return nil, fmt.Errorf("load representation %d: %w", id, err)
	}
	if rep.Resource == nil {
		return nil, restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
			fmt.Sprintf("representation %d has no resource", id))
	}
	t.loaded[id] = rep
	return rep, nil
}
