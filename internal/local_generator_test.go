package internal

import (
	"context"
	"regexp"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGenerator_ConformsToCompiledSchemas(t *testing.T) {
	store := loadPokedex(t)
	c := NewCompiler(store)
	g := NewLocalGenerator(42)
	ctx := context.Background()

	for _, id := range []int64{101, 102, 201, 301} {
		for _, opts := range []restmodel.CompileOptions{{}, {IsCollection: true, RootKey: "items"}} {
			schema, err := c.Compile(ctx, id, opts)
			require.NoError(t, err)
			for range 5 {
				v, err := g.Generate(ctx, schema)
				require.NoError(t, err)
				assert.NoError(t, restmodel.ValidateInstance(schema, v), "representation %d %+v", id, opts)
			}
		}
	}
}

func TestLocalGenerator_SameSeedSameOutput(t *testing.T) {
	schema, err := restmodel.ParseSchema(`{
		"type": "object",
		"properties": {
			"id": {"type": "integer", "minimum": 1, "maximum": 9},
			"tags": {"type": "array", "items": {"type": "string"}},
			"code": {"type": "string", "pattern": "^[a-f0-9]{8}$"}
		}
	}`)
	require.NoError(t, err)

	a, err := NewLocalGenerator(5).Generate(context.Background(), schema)
	require.NoError(t, err)
	b, err := NewLocalGenerator(5).Generate(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalGenerator_Strings(t *testing.T) {
	g := NewLocalGenerator(3)
	ctx := context.Background()

	tests := []struct {
		name   string
		schema *jsonschema.Schema
		check  func(t *testing.T, s string)
	}{
		{
			name:   "pattern",
			schema: &jsonschema.Schema{Type: "string", Pattern: `^\d{5}(-\d{4})?$`},
			check: func(t *testing.T, s string) {
				assert.Regexp(t, regexp.MustCompile(`^\d{5}(-\d{4})?$`), s)
			},
		},
		{
			name:   "alternation",
			schema: &jsonschema.Schema{Type: "string", Pattern: `^(red|green|blue)$`},
			check: func(t *testing.T, s string) {
				assert.Contains(t, []string{"red", "green", "blue"}, s)
			},
		},
		{
			name:   "email format",
			schema: &jsonschema.Schema{Type: "string", Format: "email"},
			check: func(t *testing.T, s string) {
				assert.Regexp(t, `^user\d+@example\.com$`, s)
			},
		},
		{
			name:   "uuid format",
			schema: &jsonschema.Schema{Type: "string", Format: "uuid"},
			check: func(t *testing.T, s string) {
				assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, s)
			},
		},
		{
			name:   "faker hint",
			schema: &jsonschema.Schema{Type: "string", Extra: map[string]any{"faker": "Address.city"}},
			check: func(t *testing.T, s string) {
				assert.NotEmpty(t, s)
			},
		},
		{
			name:   "date format",
			schema: &jsonschema.Schema{Type: "string", Format: "date"},
			check: func(t *testing.T, s string) {
				assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, s)
			},
		},
		{
			name:   "ipv4 format",
			schema: &jsonschema.Schema{Type: "string", Format: "ipv4"},
			check: func(t *testing.T, s string) {
				assert.Regexp(t, `^\d{1,3}(\.\d{1,3}){3}$`, s)
			},
		},
		{
			name:   "length bounds",
			schema: &jsonschema.Schema{Type: "string", MinLength: intp(12), MaxLength: intp(12)},
			check: func(t *testing.T, s string) {
				assert.Len(t, s, 12)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 10 {
				v, err := g.Generate(ctx, tt.schema)
				require.NoError(t, err)
				s, ok := v.(string)
				require.True(t, ok)
				tt.check(t, s)
			}
		})
	}
}

func TestLocalGenerator_FakerHints(t *testing.T) {
	tests := []struct {
		hint string
		key  string
	}{
		{hint: "Name.name", key: "name"},
		{hint: "Name.first_name", key: "firstname"},
		{hint: "Company.name", key: "company"},
		{hint: "PhoneNumber.phone_number", key: "phone"},
		{hint: "Internet.email", key: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			// Same seed on both sides so the direct lookup replays the draw.
			g := NewLocalGenerator(21)
			got, ok := g.fromHint(tt.hint)
			require.True(t, ok)

			want, err := gofakeit.New(21).Generate("{" + tt.key + "}")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	t.Run("unknown hint falls back to format", func(t *testing.T) {
		g := NewLocalGenerator(21)
		_, ok := g.fromHint("Pokemon.signature_move")
		assert.False(t, ok)

		v, err := g.Generate(context.Background(), &jsonschema.Schema{
			Type: "string", Format: "email", Extra: map[string]any{"faker": "Pokemon.signature_move"},
		})
		require.NoError(t, err)
		assert.Contains(t, v, "@")
	})
}

func TestLocalGenerator_ZeroSeedIsReproducible(t *testing.T) {
	schema := &jsonschema.Schema{Type: "string", Extra: map[string]any{"faker": "Name.name"}}
	a, err := NewLocalGenerator(0).Generate(context.Background(), schema)
	require.NoError(t, err)
	b, err := NewLocalGenerator(0).Generate(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalGenerator_Numbers(t *testing.T) {
	g := NewLocalGenerator(9)
	lo, hi := 10.0, 12.0

	for range 20 {
		v, err := g.Generate(context.Background(), &jsonschema.Schema{Type: "integer", Minimum: &lo, Maximum: &hi})
		require.NoError(t, err)
		n := v.(int64)
		assert.GreaterOrEqual(t, n, int64(10))
		assert.LessOrEqual(t, n, int64(12))

		v, err = g.Generate(context.Background(), &jsonschema.Schema{Type: "number", Minimum: &lo, Maximum: &hi})
		require.NoError(t, err)
		f := v.(float64)
		assert.GreaterOrEqual(t, f, lo)
		assert.LessOrEqual(t, f, hi)
	}
}

func TestLocalGenerator_Errors(t *testing.T) {
	g := NewLocalGenerator(1)
	lo, hi := 5.0, 1.0

	tests := []struct {
		name   string
		schema *jsonschema.Schema
	}{
		{"empty integer range", &jsonschema.Schema{Type: "integer", Minimum: &lo, Maximum: &hi}},
		{"unknown type", &jsonschema.Schema{Type: "date"}},
		{"unsupported pattern", &jsonschema.Schema{Type: "string", Pattern: `\bfoo\B`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), tt.schema)
			require.Error(t, err)
			assert.True(t, restmodel.IsErrorType(err, restmodel.ErrorTypeGeneratorUnavailable))
		})
	}
}
