package internal

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/lychee-technology/restmodel"
	"gopkg.in/yaml.v3"
)

// Fixture is the on-disk form of a graph snapshot.
type Fixture struct {
	Resources         []restmodel.Resource         `yaml:"resources"`
	Representations   []restmodel.Representation   `yaml:"representations"`
	Routes            []restmodel.Route            `yaml:"routes"`
	MockProfiles      []restmodel.MockProfile      `yaml:"mock_profiles"`
	MockPickers       []restmodel.MockPicker       `yaml:"mock_pickers"`
	ResourceInstances []restmodel.ResourceInstance `yaml:"resource_instances"`
}

// MemoryStore is a GraphStore kept in process, loaded from fixtures.
type MemoryStore struct {
	mu              sync.RWMutex
	resources       map[int64]*restmodel.Resource
	representations map[int64]*restmodel.Representation
	routes          map[int64]*restmodel.Route
	profiles        map[int64]*restmodel.MockProfile
	pickers         map[int64]*restmodel.MockPicker
	instances       map[int64]*restmodel.ResourceInstance
	nextID          int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources:       make(map[int64]*restmodel.Resource),
		representations: make(map[int64]*restmodel.Representation),
		routes:          make(map[int64]*restmodel.Route),
		profiles:        make(map[int64]*restmodel.MockProfile),
		pickers:         make(map[int64]*restmodel.MockPicker),
		instances:       make(map[int64]*restmodel.ResourceInstance),
		nextID:          1,
	}
}

// LoadFixtureFile reads a YAML (or JSON) fixture from disk.
func LoadFixtureFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return LoadFixture(data)
}

// LoadFixture decodes and validates a fixture.
func LoadFixture(data []byte) (*MemoryStore, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	s := NewMemoryStore()
	if err := s.load(&f); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) load(f *Fixture) error {
	for i := range f.Resources {
		r := f.Resources[i]
		for j := range r.Attributes {
			r.Attributes[j].ResourceID = r.ID
		}
		if err := restmodel.ValidateResource(&r); err != nil {
			return fmt.Errorf("resource %q: %w", r.Name, err)
		}
		s.resources[r.ID] = &r
		s.bump(r.ID)
		for _, a := range r.Attributes {
			s.bump(a.ID)
		}
	}

	if err := s.checkNestedResources(); err != nil {
		return err
	}

	for i := range f.Representations {
		rep := f.Representations[i]
		res, ok := s.resources[rep.ResourceID]
		if !ok {
			return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
				fmt.Sprintf("representation %q references missing resource %d", rep.Name, rep.ResourceID))
		}
		rep.Resource = res
		for j := range rep.Rows {
			rep.Rows[j].RepresentationID = rep.ID
			s.bump(rep.Rows[j].ID)
		}
		if err := restmodel.ValidateRepresentationRows(&rep, rep.Rows); err != nil {
			return fmt.Errorf("representation %q: %w", rep.Name, err)
		}
		s.representations[rep.ID] = &rep
		s.bump(rep.ID)
	}
	for _, rep := range s.representations {
		if err := s.checkTargets(rep, rep.Rows); err != nil {
			return fmt.Errorf("representation %q: %w", rep.Name, err)
		}
	}

	if err := restmodel.ValidateRoutes(f.Routes); err != nil {
		return err
	}
	for i := range f.Routes {
		route := f.Routes[i]
		for j := range route.Responses {
			resp := &route.Responses[j]
			resp.RouteID = route.ID
			if resp.RepresentationID != nil {
				if _, ok := s.representations[*resp.RepresentationID]; !ok {
					return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
						fmt.Sprintf("response %d of route %q renders missing representation %d", resp.ID, route.Name, *resp.RepresentationID))
				}
			}
			s.bump(resp.ID)
		}
		s.routes[route.ID] = &route
		s.bump(route.ID)
	}

	for i := range f.MockProfiles {
		p := f.MockProfiles[i]
		s.profiles[p.ID] = &p
		s.bump(p.ID)
	}
	for i := range f.ResourceInstances {
		inst := f.ResourceInstances[i]
		s.instances[inst.ID] = &inst
		s.bump(inst.ID)
	}
	for i := range f.MockPickers {
		p := f.MockPickers[i]
		if err := restmodel.ValidateMockPicker(&p); err != nil {
			return fmt.Errorf("mock picker %d: %w", p.ID, err)
		}
		if !s.responseExists(p.ResponseID) {
			return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
				fmt.Sprintf("mock picker %d references missing response %d", p.ID, p.ResponseID))
		}
		s.pickers[p.ID] = &p
		s.bump(p.ID)
	}

	for _, id := range slices.Sorted(maps.Keys(s.representations)) {
		rep := s.representations[id]
		for j := range rep.Rows {
			if rep.Rows[j].ID == 0 {
				rep.Rows[j].ID = s.allocID()
			}
		}
	}
	return nil
}

// checkNestedResources verifies every nested attribute names a loaded
// resource. Callers hold the lock.
func (s *MemoryStore) checkNestedResources() error {
	for _, id := range slices.Sorted(maps.Keys(s.resources)) {
		r := s.resources[id]
		for _, attr := range r.Attributes {
			if attr.NestedResourceID == nil {
				continue
			}
			if _, ok := s.resources[*attr.NestedResourceID]; !ok {
				return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
					fmt.Sprintf("attribute %s.%s nests missing resource %d", r.Name, attr.Name, *attr.NestedResourceID)).
					WithField(attr.Name)
			}
		}
	}
	return nil
}

// checkTargets verifies that every kept nested row points at a representation
// of the attribute's nested resource. Callers hold the lock.
func (s *MemoryStore) checkTargets(rep *restmodel.Representation, rows []restmodel.AttributeRepresentation) error {
	for _, row := range rows {
		if row.Destroy {
			continue
		}
		attr, ok := rep.Resource.Attribute(row.AttributeID)
		if !ok {
			continue
		}
		if row.TargetRepresentationID == nil {
			if attr.Kind() == restmodel.AttributeKindNested {
				return restmodel.NewGraphIntegrityError(restmodel.ErrCodeMissingTarget,
					fmt.Sprintf("nested attribute %q has no target representation", attr.Name)).WithField(attr.Name)
			}
			continue
		}
		if attr.Kind() != restmodel.AttributeKindNested {
			return restmodel.NewGraphIntegrityError(restmodel.ErrCodeForeignTarget,
				fmt.Sprintf("primitive attribute %q cannot target a representation", attr.Name)).WithField(attr.Name)
		}
		target, ok := s.representations[*row.TargetRepresentationID]
		if !ok {
			return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
				fmt.Sprintf("attribute %q targets missing representation %d", attr.Name, *row.TargetRepresentationID)).
				WithField(attr.Name)
		}
		if target.ResourceID != *attr.NestedResourceID {
			return restmodel.NewGraphIntegrityError(restmodel.ErrCodeForeignTarget,
				fmt.Sprintf("attribute %q targets representation %d of another resource", attr.Name, target.ID)).
				WithField(attr.Name)
		}
	}
	return nil
}

func (s *MemoryStore) bump(id int64) {
	if id >= s.nextID {
		s.nextID = id + 1
	}
}

func (s *MemoryStore) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// GetRepresentation returns a copy of the representation with its resource.
func (s *MemoryStore) GetRepresentation(ctx context.Context, id int64) (*restmodel.Representation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.representations[id]
	if !ok {
		return nil, restmodel.NewNotFoundError("representation", id)
	}
	res, ok := s.resources[rep.ResourceID]
	if !ok {
		return nil, restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
			fmt.Sprintf("representation %d references missing resource %d", id, rep.ResourceID))
	}

	out := *rep
	out.Rows = slices.Clone(rep.Rows)
	resCopy := *res
	resCopy.Attributes = slices.Clone(res.Attributes)
	out.Resource = &resCopy
	return &out, nil
}

// ListRepresentations returns the resource's representations by id, without
// rows or resource.
func (s *MemoryStore) ListRepresentations(ctx context.Context, resourceID int64) ([]restmodel.Representation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []restmodel.Representation
	for _, rep := range s.representations {
		if rep.ResourceID == resourceID {
			out = append(out, restmodel.Representation{
				ID:          rep.ID,
				ResourceID:  rep.ResourceID,
				Name:        rep.Name,
				Description: rep.Description,
			})
		}
	}
	slices.SortFunc(out, func(a, b restmodel.Representation) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// SaveRepresentationRows applies a batch of row changes atomically.
func (s *MemoryStore) SaveRepresentationRows(ctx context.Context, representationID int64, rows []restmodel.AttributeRepresentation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep, ok := s.representations[representationID]
	if !ok {
		return restmodel.NewNotFoundError("representation", representationID)
	}
	if err := s.checkTargets(rep, rows); err != nil {
		return err
	}

	next := slices.Clone(rep.Rows)
	for _, row := range rows {
		row.RepresentationID = representationID
		idx := slices.IndexFunc(next, func(r restmodel.AttributeRepresentation) bool {
			if row.ID != 0 {
				return r.ID == row.ID
			}
			return r.AttributeID == row.AttributeID
		})
		switch {
		case row.Destroy:
			if idx >= 0 {
				next = slices.Delete(next, idx, idx+1)
			}
		case idx >= 0:
			row.ID = next[idx].ID
			next[idx] = row
		case row.ID != 0:
			return restmodel.NewNotFoundError("attribute representation", row.ID)
		default:
			row.ID = s.allocID()
			next = append(next, row)
		}
	}
	rep.Rows = next
	return nil
}

// DeleteResource removes a resource with its representations, routes and
// instances unless another resource nests it.
func (s *MemoryStore) DeleteResource(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[id]; !ok {
		return restmodel.NewNotFoundError("resource", id)
	}
	for _, other := range s.resources {
		if other.ID == id {
			continue
		}
		for _, attr := range other.Attributes {
			if attr.NestedResourceID != nil && *attr.NestedResourceID == id {
				return restmodel.NewDeleteConflictError(restmodel.ErrCodeReferencedByAttribute,
					fmt.Sprintf("resource %d is nested by %s.%s", id, other.Name, attr.Name))
			}
		}
	}

	var reps []int64
	for repID, rep := range s.representations {
		if rep.ResourceID == id {
			reps = append(reps, repID)
		}
	}
	for _, repID := range reps {
		if err := s.representationConflict(repID, id, true); err != nil {
			return err
		}
	}

	for _, repID := range reps {
		delete(s.representations, repID)
	}
	for routeID, route := range s.routes {
		if route.ResourceID == id {
			delete(s.routes, routeID)
		}
	}
	for instID, inst := range s.instances {
		if inst.ResourceID == id {
			delete(s.instances, instID)
		}
	}
	delete(s.resources, id)
	return nil
}

// DeleteRepresentation removes a representation unless a row of another
// representation or a response of another resource's route still uses it.
func (s *MemoryStore) DeleteRepresentation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep, ok := s.representations[id]
	if !ok {
		return restmodel.NewNotFoundError("representation", id)
	}
	if err := s.representationConflict(id, rep.ResourceID, false); err != nil {
		return err
	}
	delete(s.representations, id)
	return nil
}

// representationConflict reports rows and responses still pointing at a
// representation. When the owning resource is deleted along with it, the
// owner's own representations and routes are ignored. Callers hold the lock.
func (s *MemoryStore) representationConflict(repID, owner int64, ownerDeleted bool) error {
	for _, other := range s.representations {
		if other.ID == repID || (ownerDeleted && other.ResourceID == owner) {
			continue
		}
		for _, row := range other.Rows {
			if row.TargetRepresentationID != nil && *row.TargetRepresentationID == repID {
				return restmodel.NewDeleteConflictError(restmodel.ErrCodeReferencedByRepresentation,
					fmt.Sprintf("representation %d is the nested target of representation %q", repID, other.Name))
			}
		}
	}
	for _, route := range s.routes {
		if ownerDeleted && route.ResourceID == owner {
			continue
		}
		for _, resp := range route.Responses {
			if resp.RepresentationID != nil && *resp.RepresentationID == repID {
				return restmodel.NewDeleteConflictError(restmodel.ErrCodeReferencedByResponse,
					fmt.Sprintf("representation %d renders response %d of route %q", repID, resp.ID, route.Name))
			}
		}
	}
	return nil
}

// SaveMockPicker inserts or replaces a picker, assigning an id to new ones.
func (s *MemoryStore) SaveMockPicker(ctx context.Context, picker *restmodel.MockPicker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[picker.MockProfileID]; !ok {
		return restmodel.NewNotFoundError("mock profile", picker.MockProfileID)
	}
	if !s.responseExists(picker.ResponseID) {
		return restmodel.NewNotFoundError("response", picker.ResponseID)
	}
	for _, instID := range picker.InstanceIDs {
		if _, ok := s.instances[instID]; !ok {
			return restmodel.NewNotFoundError("resource instance", instID)
		}
	}

	if picker.ID == 0 {
		picker.ID = s.allocID()
	} else if _, ok := s.pickers[picker.ID]; !ok {
		return restmodel.NewNotFoundError("mock picker", picker.ID)
	}
	stored := *picker
	stored.InstanceIDs = slices.Clone(picker.InstanceIDs)
	s.pickers[picker.ID] = &stored
	return nil
}

func (s *MemoryStore) responseExists(id int64) bool {
	for _, route := range s.routes {
		for _, resp := range route.Responses {
			if resp.ID == id {
				return true
			}
		}
	}
	return false
}

// GetMockProfile returns a mock profile by id.
func (s *MemoryStore) GetMockProfile(ctx context.Context, id int64) (*restmodel.MockProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, restmodel.NewNotFoundError("mock profile", id)
	}
	out := *p
	return &out, nil
}

// ListRoutes returns the routes of the project's resources ordered by id.
func (s *MemoryStore) ListRoutes(ctx context.Context, projectID int64) ([]restmodel.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []restmodel.Route
	for _, route := range s.routes {
		res, ok := s.resources[route.ResourceID]
		if !ok || res.ProjectID != projectID {
			continue
		}
		r := *route
		r.Responses = slices.Clone(route.Responses)
		slices.SortFunc(r.Responses, func(a, b restmodel.Response) int { return cmp.Compare(a.ID, b.ID) })
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b restmodel.Route) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListPickers returns the profile's pickers ordered by (Position, ID).
func (s *MemoryStore) ListPickers(ctx context.Context, profileID int64) ([]restmodel.MockPicker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []restmodel.MockPicker
	for _, p := range s.pickers {
		if p.MockProfileID == profileID {
			c := *p
			c.InstanceIDs = slices.Clone(p.InstanceIDs)
			out = append(out, c)
		}
	}
	SortPickers(out)
	return out, nil
}

// GetInstances returns the instances in the order of ids, skipping unknown ids.
func (s *MemoryStore) GetInstances(ctx context.Context, ids []int64) ([]restmodel.ResourceInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]restmodel.ResourceInstance, 0, len(ids))
	for _, id := range ids {
		if inst, ok := s.instances[id]; ok {
			out = append(out, *inst)
		}
	}
	return out, nil
}

// Snapshot returns the stored graph as a fixture with every kind ordered by id.
func (s *MemoryStore) Snapshot() *Fixture {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := &Fixture{}
	for _, id := range slices.Sorted(maps.Keys(s.resources)) {
		r := *s.resources[id]
		r.Attributes = slices.Clone(r.Attributes)
		f.Resources = append(f.Resources, r)
	}
	for _, id := range slices.Sorted(maps.Keys(s.representations)) {
		rep := *s.representations[id]
		rep.Resource = nil
		rep.Rows = slices.Clone(rep.Rows)
		f.Representations = append(f.Representations, rep)
	}
	for _, id := range slices.Sorted(maps.Keys(s.routes)) {
		route := *s.routes[id]
		route.Responses = slices.Clone(route.Responses)
		f.Routes = append(f.Routes, route)
	}
	for _, id := range slices.Sorted(maps.Keys(s.profiles)) {
		f.MockProfiles = append(f.MockProfiles, *s.profiles[id])
	}
	for _, id := range slices.Sorted(maps.Keys(s.instances)) {
		f.ResourceInstances = append(f.ResourceInstances, *s.instances[id])
	}
	for _, id := range slices.Sorted(maps.Keys(s.pickers)) {
		p := *s.pickers[id]
		p.InstanceIDs = slices.Clone(p.InstanceIDs)
		f.MockPickers = append(f.MockPickers, p)
	}
	return f
}

// SortPickers orders pickers by position, then id.
func SortPickers(pickers []restmodel.MockPicker) {
	slices.SortStableFunc(pickers, func(a, b restmodel.MockPicker) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
