package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
	"go.uber.org/zap"
)

type modelService struct {
	store    restmodel.GraphStore
	cache    restmodel.SchemaCache
	compiler *Compiler
	order    restmodel.AttributeOrder
	mocks    *MockServer
}

// NewModelService creates the ModelService over a graph store. cache may be
// nil. A nil config uses the defaults.
func NewModelService(
	store restmodel.GraphStore,
	generator restmodel.InstanceGenerator,
	cache restmodel.SchemaCache,
	config *restmodel.Config,
) restmodel.ModelService {
	if config == nil {
		config = restmodel.DefaultConfig()
	}
	order := AttributeOrderFor(config.Mock.AttributeOrder)
	compiler := NewCompiler(store, WithAttributeOrder(order))
	builder := NewBodyBuilder(store, store, compiler, generator, WithBodyValidation(config.Mock.ValidateBodies))

	return &modelService{
		store:    store,
		cache:    cache,
		compiler: compiler,
		order:    order,
		mocks:    NewMockServer(store, NewMatcher(), builder),
	}
}

// AttributeOrderFor maps the configured order name to an AttributeOrder.
func AttributeOrderFor(name string) restmodel.AttributeOrder {
	if name == "declaration" {
		return restmodel.DeclarationOrder
	}
	return restmodel.AlphabeticalOrder
}

func (s *modelService) CompileSchema(ctx context.Context, representationID int64, opts restmodel.CompileOptions) (*jsonschema.Schema, error) {
	start := time.Now()
	key := SchemaCacheKey(representationID, opts)

	if s.cache != nil {
		schema, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			zap.S().Warnw("schema cache lookup failed", "key", key, "error", err)
		}
		EmitCacheLookup(ctx, ok)
		if ok {
			EmitCompileLatency(ctx, true, time.Since(start).Milliseconds())
			return schema, nil
		}
	}

	schema, err := s.compiler.Compile(ctx, representationID, opts)
	if err != nil {
		return nil, err
	}
	EmitCompileLatency(ctx, false, time.Since(start).Milliseconds())

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, schema); err != nil {
			zap.S().Warnw("schema cache store failed", "key", key, "error", err)
		}
	}
	return schema, nil
}

func (s *modelService) EditorRows(ctx context.Context, representationID int64) ([]restmodel.EditorRow, error) {
	rep, err := s.store.GetRepresentation(ctx, representationID)
	if err != nil {
		return nil, fmt.Errorf("load representation %d: %w", representationID, err)
	}

	candidates := make(map[int64][]restmodel.Representation)
	for _, attr := range rep.Resource.Attributes {
		if attr.Kind() != restmodel.AttributeKindNested {
			continue
		}
		nestedID := *attr.NestedResourceID
		if _, ok := candidates[nestedID]; ok {
			continue
		}
		reps, err := s.store.ListRepresentations(ctx, nestedID)
		if err != nil {
			return nil, fmt.Errorf("list representations of resource %d: %w", nestedID, err)
		}
		candidates[nestedID] = reps
	}
	return EditorRows(rep, candidates, s.order), nil
}

func (s *modelService) UpdateRepresentationRows(ctx context.Context, representationID int64, rows []restmodel.AttributeRepresentation) error {
	rep, err := s.store.GetRepresentation(ctx, representationID)
	if err != nil {
		return fmt.Errorf("load representation %d: %w", representationID, err)
	}
	if err := restmodel.ValidateRepresentationRows(rep, rows); err != nil {
		return err
	}

	for i := range rows {
		rows[i].RepresentationID = representationID
		if rows[i].Destroy {
			continue
		}
		if err := s.checkTarget(ctx, rep, rows[i]); err != nil {
			return err
		}
	}

	if err := s.store.SaveRepresentationRows(ctx, representationID, rows); err != nil {
		return fmt.Errorf("save rows of representation %d: %w", representationID, err)
	}
	s.invalidate(ctx)
	zap.S().Infow("representation rows updated", "representation", representationID, "rows", len(rows))
	return nil
}

// checkTarget verifies a nested row points at a representation of the
// attribute's nested resource. A kept nested row must name a target.
func (s *modelService) checkTarget(ctx context.Context, rep *restmodel.Representation, row restmodel.AttributeRepresentation) error {
	attr, _ := rep.Resource.Attribute(row.AttributeID)
	if row.TargetRepresentationID == nil {
		if attr.Kind() == restmodel.AttributeKindNested {
			return restmodel.NewGraphIntegrityError(restmodel.ErrCodeMissingTarget,
				fmt.Sprintf("nested attribute %q has no target representation", attr.Name)).WithField(attr.Name)
		}
		return nil
	}
	if attr.Kind() != restmodel.AttributeKindNested {
		return restmodel.NewValidationError(attr.Name, "only nested attributes can target a representation")
	}

	target, err := s.store.GetRepresentation(ctx, *row.TargetRepresentationID)
	if err != nil {
		if restmodel.IsErrorType(err, restmodel.ErrorTypeNotFound) {
			return restmodel.NewGraphIntegrityError(restmodel.ErrCodeDanglingReference,
				fmt.Sprintf("attribute %q targets missing representation %d", attr.Name, *row.TargetRepresentationID)).
				WithField(attr.Name).WithCause(err)
		}
		return fmt.Errorf("load target representation %d: %w", *row.TargetRepresentationID, err)
	}
	if target.ResourceID != *attr.NestedResourceID {
		return restmodel.NewGraphIntegrityError(restmodel.ErrCodeForeignTarget,
			fmt.Sprintf("attribute %q targets representation %d of another resource", attr.Name, target.ID)).
			WithField(attr.Name)
	}
	return nil
}

func (s *modelService) DeleteResource(ctx context.Context, id int64) error {
	if err := s.store.DeleteResource(ctx, id); err != nil {
		return fmt.Errorf("delete resource %d: %w", id, err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *modelService) DeleteRepresentation(ctx context.Context, id int64) error {
	if err := s.store.DeleteRepresentation(ctx, id); err != nil {
		return fmt.Errorf("delete representation %d: %w", id, err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *modelService) SaveMockPicker(ctx context.Context, picker *restmodel.MockPicker) error {
	if err := restmodel.ValidateMockPicker(picker); err != nil {
		return err
	}
	if err := s.store.SaveMockPicker(ctx, picker); err != nil {
		return fmt.Errorf("save mock picker: %w", err)
	}
	return nil
}

func (s *modelService) ServeMock(ctx context.Context, req restmodel.MockRequest) (*restmodel.MockResult, error) {
	return s.mocks.Serve(ctx, req)
}

func (s *modelService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		zap.S().Warnw("schema cache invalidation failed", "error", err)
	}
}
