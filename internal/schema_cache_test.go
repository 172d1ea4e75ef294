package internal

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps values in a map and answers with pre-resolved commands.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls  map[string]time.Duration
	err   error
	scans int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan pages through the sorted matching keys; the cursor is the offset of
// the next page.
func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	if f.err != nil {
		return redis.NewScanCmdResult(nil, 0, f.err)
	}
	var all []string
	for k := range f.data {
		if ok, _ := path.Match(match, k); ok {
			all = append(all, k)
		}
	}
	slices.Sort(all)
	start := min(int(cursor), len(all))
	end := min(start+int(count), len(all))
	var next uint64
	if end < len(all) {
		next = uint64(end)
	}
	return redis.NewScanCmdResult(all[start:end], next, nil)
}

func TestSchemaCacheKey(t *testing.T) {
	assert.Equal(t, "rep:5:collection:false:root:", SchemaCacheKey(5, restmodel.CompileOptions{}))
	assert.Equal(t, "rep:5:collection:true:root:items", SchemaCacheKey(5, restmodel.CompileOptions{IsCollection: true, RootKey: "items"}))
}

func TestRedisSchemaCache_RoundTrip(t *testing.T) {
	store := loadPokedex(t)
	compiled, err := NewCompiler(store, WithAttributeOrder(restmodel.DeclarationOrder)).
		Compile(context.Background(), 101, restmodel.CompileOptions{RootKey: "pokemon"})
	require.NoError(t, err)

	client := newFakeRedis()
	cache := NewRedisSchemaCache(client, "restmodel:", time.Hour)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", compiled))
	assert.Equal(t, time.Hour, client.ttls["restmodel:k"])

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schemaJSON(t, compiled), schemaJSON(t, got))
	assert.Equal(t, []string{"id", "weight", "weaknessList", "name"}, got.Properties["pokemon"].PropertyOrder)
}

func TestRedisSchemaCache_Invalidate(t *testing.T) {
	client := newFakeRedis()
	client.data["other:key"] = "x"
	cache := NewRedisSchemaCache(client, "restmodel:", 0)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", &jsonschema.Schema{Type: "object"}))
	require.NoError(t, cache.Set(ctx, "b", &jsonschema.Schema{Type: "array"}))
	require.NoError(t, cache.Invalidate(ctx))

	_, ok, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, client.data, "other:key")

	require.NoError(t, cache.Invalidate(ctx))
}

func TestRedisSchemaCache_InvalidatePages(t *testing.T) {
	tests := []struct {
		name      string
		keys      int
		wantScans int
	}{
		{name: "empty", keys: 0, wantScans: 1},
		{name: "single page", keys: 3, wantScans: 1},
		{name: "several pages", keys: 250, wantScans: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeRedis()
			client.data["other:key"] = "x"
			for i := range tt.keys {
				client.data[fmt.Sprintf("restmodel:rep:%d", i)] = "{}"
			}

			require.NoError(t, NewRedisSchemaCache(client, "restmodel:", 0).Invalidate(context.Background()))
			assert.Equal(t, map[string]string{"other:key": "x"}, client.data)
			assert.Equal(t, tt.wantScans, client.scans)
		})
	}

	t.Run("scan error", func(t *testing.T) {
		client := newFakeRedis()
		client.err = errors.New("connection refused")
		err := NewRedisSchemaCache(client, "restmodel:", 0).Invalidate(context.Background())
		assert.ErrorIs(t, err, client.err)
	})
}

func TestRedisSchemaCache_Errors(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	cache := NewRedisSchemaCache(client, "p:", time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "a")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, cache.Set(ctx, "a", &jsonschema.Schema{Type: "object"}))

	client.err = nil
	client.data["p:bad"] = "{not json"
	_, ok, err = cache.Get(ctx, "bad")
	assert.Error(t, err)
	assert.False(t, ok)
}
