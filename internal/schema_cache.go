package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
	"github.com/redis/go-redis/v9"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

const invalidateScanCount = 100

// RedisSchemaCache keeps compiled schema documents in Redis under a common
// key prefix.
type RedisSchemaCache struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// NewRedisSchemaCache creates a cache over an existing client.
func NewRedisSchemaCache(client redisClient, prefix string, ttl time.Duration) *RedisSchemaCache {
	return &RedisSchemaCache{client: client, prefix: prefix, ttl: ttl}
}

// SchemaCacheKey identifies a compiled document by representation and options.
func SchemaCacheKey(representationID int64, opts restmodel.CompileOptions) string {
	return fmt.Sprintf("rep:%d:collection:%t:root:%s", representationID, opts.IsCollection, opts.RootKey)
}

// cacheEntry carries the property orders, which the schema's JSON form does
// not keep, keyed by the path of the subschema.
type cacheEntry struct {
	Schema *jsonschema.Schema  `json:"schema"`
	Orders map[string][]string `json:"orders,omitempty"`
}

// Get returns the cached document, reporting false on a miss.
func (c *RedisSchemaCache) Get(ctx context.Context, key string) (*jsonschema.Schema, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached schema %s: %w", key, err)
	}
	if entry.Schema == nil {
		return nil, false, nil
	}
	walkSchemas(entry.Schema, "", func(path string, s *jsonschema.Schema) {
		s.PropertyOrder = entry.Orders[path]
	})
	return entry.Schema, true, nil
}

// Set stores a document with the cache TTL.
func (c *RedisSchemaCache) Set(ctx context.Context, key string, schema *jsonschema.Schema) error {
	entry := cacheEntry{Schema: schema, Orders: map[string][]string{}}
	walkSchemas(schema, "", func(path string, s *jsonschema.Schema) {
		if len(s.PropertyOrder) > 0 {
			entry.Orders[path] = s.PropertyOrder
		}
	})
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode schema %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every document under the prefix. Any graph write can
// change documents of other representations through nesting. Keys are walked
// with SCAN so a large keyspace never blocks the server.
func (c *RedisSchemaCache) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", invalidateScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func walkSchemas(s *jsonschema.Schema, path string, fn func(string, *jsonschema.Schema)) {
	if s == nil {
		return
	}
	fn(path, s)
	walkSchemas(s.Items, path+"/items", fn)
	for name, prop := range s.Properties {
		walkSchemas(prop, path+"/properties/"+name, fn)
	}
	for i, alt := range s.OneOf {
		walkSchemas(alt, path+"/oneOf/"+strconv.Itoa(i), fn)
	}
}
