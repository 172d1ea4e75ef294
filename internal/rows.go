package internal

import (
	"fmt"

	"github.com/lychee-technology/restmodel"
)

// SelectedRow pairs an attribute with the representation's stored row for it.
type SelectedRow struct {
	Attribute *restmodel.ResourceAttribute
	Row       restmodel.AttributeRepresentation
}

// RowFor returns the stored row for the attribute or the default row.
func RowFor(rep *restmodel.Representation, attr *restmodel.ResourceAttribute) restmodel.AttributeRepresentation {
	if row, ok := rep.Row(attr.ID); ok {
		return *row
	}
	return restmodel.DefaultRow(rep.ID, attr.ID)
}

// SelectedRows returns the stored, non-destroyed rows of a representation in
// attribute order.
func SelectedRows(rep *restmodel.Representation, order restmodel.AttributeOrder) ([]SelectedRow, error) {
	if rep.Resource == nil {
		return nil, restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
			fmt.Sprintf("representation %d has no resource", rep.ID))
	}
	for _, row := range rep.Rows {
		if _, ok := rep.Resource.Attribute(row.AttributeID); !ok {
			return nil, restmodel.NewGraphIntegrityError(restmodel.ErrCodeForeignAttribute,
				fmt.Sprintf("representation %q has a row for attribute %d outside resource %q",
					rep.Name, row.AttributeID, rep.Resource.Name))
		}
	}

	attrs := orderedAttributes(rep.Resource, order)
	out := make([]SelectedRow, 0, len(rep.Rows))
	for _, attr := range attrs {
		row, ok := rep.Row(attr.ID)
		if !ok || row.Destroy {
			continue
		}
		out = append(out, SelectedRow{Attribute: attr, Row: *row})
	}
	return out, nil
}

// EditorRows returns one entry per attribute of the representation's resource.
// candidates maps a nested resource id to the representations it offers.
func EditorRows(rep *restmodel.Representation, candidates map[int64][]restmodel.Representation, order restmodel.AttributeOrder) []restmodel.EditorRow {
	attrs := orderedAttributes(rep.Resource, order)
	out := make([]restmodel.EditorRow, 0, len(attrs))
	for _, attr := range attrs {
		row := RowFor(rep, attr)
		entry := restmodel.EditorRow{
			Attribute:              *attr,
			Row:                    row,
			Selected:               row.Stored() && !row.Destroy,
			TargetRepresentationID: row.TargetRepresentationID,
		}
		if attr.Kind() == restmodel.AttributeKindNested {
			for _, c := range candidates[*attr.NestedResourceID] {
				entry.Candidates = append(entry.Candidates, restmodel.RepresentationRef{ID: c.ID, Name: c.Name})
			}
		}
		out = append(out, entry)
	}
	return out
}

func orderedAttributes(res *restmodel.Resource, order restmodel.AttributeOrder) []*restmodel.ResourceAttribute {
	if res == nil {
		return nil
	}
	attrs := make([]*restmodel.ResourceAttribute, 0, len(res.Attributes))
	for i := range res.Attributes {
		attrs = append(attrs, &res.Attributes[i])
	}
	if order == nil {
		order = restmodel.AlphabeticalOrder
	}
	order(attrs)
	return attrs
}
