package internal

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
)

const (
	maxGenerateDepth = 32
	patternAttempts  = 8
	defaultFakerSeed = 0x9e3779b97f4a7c15
)

// fakerLookups maps hints whose method name differs from the gofakeit lookup
// key. Other hints resolve by lowercasing the method and dropping underscores.
var fakerLookups = map[string]string{
	"Company.name":             "company",
	"Address.street_address":   "street",
	"Address.street_name":      "streetname",
	"PhoneNumber.phone_number": "phone",
	"PhoneNumber.cell_phone":   "phone",
	"Internet.user_name":       "username",
	"Internet.domain_name":     "domainname",
	"Internet.ip_v4_address":   "ipv4address",
}

// LocalGenerator fabricates instances in process from a seeded faker. Equal
// seeds produce equal sequences of instances.
type LocalGenerator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewLocalGenerator creates a generator seeded with seed. A zero seed is
// replaced by a fixed constant so output stays reproducible.
func NewLocalGenerator(seed int64) *LocalGenerator {
	s := uint64(seed)
	if s == 0 {
		s = defaultFakerSeed
	}
	return &LocalGenerator{faker: gofakeit.New(s)}
}

// Generate implements restmodel.InstanceGenerator.
func (g *LocalGenerator) Generate(ctx context.Context, schema *jsonschema.Schema) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	out, err := g.value(schema, 0)
	EmitGeneratorLatency(ctx, "local", err == nil, time.Since(start).Milliseconds())
	if err != nil {
		return nil, restmodel.NewGeneratorUnavailableError("generate instance locally", err)
	}
	return out, nil
}

func (g *LocalGenerator) value(s *jsonschema.Schema, depth int) (any, error) {
	if s == nil {
		return nil, nil
	}
	if depth > maxGenerateDepth {
		return nil, fmt.Errorf("schema nests deeper than %d levels", maxGenerateDepth)
	}
	if len(s.OneOf) > 0 {
		return g.value(g.pickAlternative(s.OneOf), depth+1)
	}
	if len(s.Enum) > 0 {
		return s.Enum[g.faker.IntN(len(s.Enum))], nil
	}
	if s.Const != nil {
		return *s.Const, nil
	}

	typ := s.Type
	if typ == "" && len(s.Types) > 0 {
		typ = s.Types[0]
	}
	if typ == "" {
		switch {
		case s.Properties != nil:
			typ = "object"
		case s.Items != nil:
			typ = "array"
		}
	}

	switch typ {
	case "object":
		return g.object(s, depth)
	case "array":
		return g.array(s, depth)
	case "string":
		return g.str(s)
	case "integer":
		return g.integer(s)
	case "number":
		return g.number(s)
	case "boolean":
		return g.faker.Bool(), nil
	case "null", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported type %q", typ)
	}
}

// pickAlternative prefers non-null alternatives three times out of four.
func (g *LocalGenerator) pickAlternative(alts []*jsonschema.Schema) *jsonschema.Schema {
	var nonNull []*jsonschema.Schema
	var null *jsonschema.Schema
	for _, a := range alts {
		if a != nil && a.Type == "null" {
			null = a
			continue
		}
		nonNull = append(nonNull, a)
	}
	if null != nil && (len(nonNull) == 0 || g.faker.IntN(4) == 0) {
		return null
	}
	return nonNull[g.faker.IntN(len(nonNull))]
}

func (g *LocalGenerator) object(s *jsonschema.Schema, depth int) (any, error) {
	out := make(map[string]any, len(s.Properties))
	for _, name := range propertyNames(s) {
		v, err := g.value(s.Properties[name], depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// propertyNames lists PropertyOrder first, then the remaining keys sorted.
func propertyNames(s *jsonschema.Schema) []string {
	names := make([]string, 0, len(s.Properties))
	seen := make(map[string]bool, len(s.Properties))
	for _, name := range s.PropertyOrder {
		if _, ok := s.Properties[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

func (g *LocalGenerator) array(s *jsonschema.Schema, depth int) (any, error) {
	lo, hi := 1, 3
	if s.MinItems != nil {
		lo = *s.MinItems
		if hi < lo {
			hi = lo
		}
	}
	if s.MaxItems != nil && *s.MaxItems < hi {
		hi = *s.MaxItems
	}
	if hi < lo {
		return nil, fmt.Errorf("minItems %d exceeds maxItems %d", lo, hi)
	}
	n := g.faker.IntRange(lo, hi)
	items := make([]any, 0, n)
	for range n {
		v, err := g.value(s.Items, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func (g *LocalGenerator) integer(s *jsonschema.Schema) (any, error) {
	lo, hi := int64(0), int64(1000)
	if s.Minimum != nil {
		lo = int64(math.Ceil(*s.Minimum))
		if s.Maximum == nil {
			hi = lo + 1000
		}
	}
	if s.Maximum != nil {
		hi = int64(math.Floor(*s.Maximum))
		if s.Minimum == nil {
			lo = hi - 1000
		}
	}
	if lo > hi {
		return nil, fmt.Errorf("no integer between %d and %d", lo, hi)
	}
	return int64(g.faker.IntRange(int(lo), int(hi))), nil
}

func (g *LocalGenerator) number(s *jsonschema.Schema) (any, error) {
	lo, hi := 0.0, 1000.0
	if s.Minimum != nil {
		lo = *s.Minimum
		if s.Maximum == nil {
			hi = lo + 1000
		}
	}
	if s.Maximum != nil {
		hi = *s.Maximum
		if s.Minimum == nil {
			lo = hi - 1000
		}
	}
	if lo > hi {
		return nil, fmt.Errorf("no number between %g and %g", lo, hi)
	}
	v := math.Round(g.faker.Float64Range(lo, hi)*100) / 100
	return min(max(v, lo), hi), nil
}

func (g *LocalGenerator) str(s *jsonschema.Schema) (any, error) {
	if s.Pattern != "" {
		return g.fromPattern(s.Pattern)
	}

	out, ok := g.fromHint(s.Extra["faker"])
	if !ok {
		if s.Format != "" {
			out = g.formatted(s.Format)
		} else {
			out = g.faker.Word()
		}
	}

	if s.MinLength != nil {
		for utf8.RuneCountInString(out) < *s.MinLength {
			out += " " + g.faker.Word()
		}
	}
	if s.MaxLength != nil && utf8.RuneCountInString(out) > *s.MaxLength {
		out = string([]rune(out)[:*s.MaxLength])
	}
	return out, nil
}

// fromHint resolves a "Class.method" faker hint to a gofakeit lookup.
func (g *LocalGenerator) fromHint(hint any) (string, bool) {
	name, ok := hint.(string)
	if !ok || name == "" {
		return "", false
	}
	key, ok := fakerLookups[name]
	if !ok {
		method := name
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			method = name[i+1:]
		}
		key = strings.ToLower(strings.ReplaceAll(method, "_", ""))
	}
	if info := gofakeit.GetFuncLookup(key); info == nil || info.Output != "string" {
		return "", false
	}
	out, err := g.faker.Generate("{" + key + "}")
	if err != nil {
		return "", false
	}
	return out, true
}

func (g *LocalGenerator) formatted(format string) string {
	switch format {
	case "email":
		return g.faker.Email()
	case "uri", "url":
		return g.faker.URL()
	case "uuid":
		return g.faker.UUID()
	case "date-time":
		return g.faker.Date().UTC().Format(time.RFC3339)
	case "date":
		return g.faker.Date().Format(time.DateOnly)
	case "time":
		return g.faker.Date().Format(time.TimeOnly)
	case "ipv4":
		return g.faker.IPv4Address()
	case "hostname":
		return g.faker.DomainName()
	default:
		return g.faker.Word()
	}
}

// fromPattern draws strings from the pattern until one matches it. Anchors and
// word boundaries are not honoured by the faker, so the check is required.
func (g *LocalGenerator) fromPattern(pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	for range patternAttempts {
		if out := g.faker.Regex(pattern); re.MatchString(out) {
			return out, nil
		}
	}
	return "", fmt.Errorf("cannot synthesize a string matching %q", pattern)
}
