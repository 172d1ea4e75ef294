package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

const defaultHealthTimeout = 5 * time.Second

// HealthCheck reports whether one backing dependency is usable.
type HealthCheck func(ctx context.Context) error

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// PostgresHealthCheck runs a trivial query against the graph database.
// timeout may be 0 to use the default (5s).
func PostgresHealthCheck(db execer, timeout time.Duration) HealthCheck {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := db.Exec(ctx, "SELECT 1"); err != nil {
			return fmt.Errorf("postgres simple query failed: %w", err)
		}
		return nil
	}
}

// RedisHealthCheck pings the schema cache server.
func RedisHealthCheck(client pinger, timeout time.Duration) HealthCheck {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}

// CheckAll runs every named check and returns the failures keyed by name.
func CheckAll(ctx context.Context, checks map[string]HealthCheck) map[string]error {
	failed := map[string]error{}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}
