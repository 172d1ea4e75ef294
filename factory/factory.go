package factory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/restmodel"
	"github.com/lychee-technology/restmodel/internal"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pool is the subset of *pgxpool.Pool the model service needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// test hooks
var (
	tableCollector = collectTablesFromPool
	tokenGenerator = generateIAMToken
)

// ConnString builds a postgres URL from the database settings. password
// overrides the configured one when non-empty.
func ConnString(cfg restmodel.DatabaseConfig, password string) string {
	if password == "" {
		password = cfg.Password
	}

	var userInfo *url.Userinfo
	if password != "" {
		userInfo = url.UserPassword(cfg.Username, password)
	} else {
		userInfo = url.User(cfg.Username)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NewPool opens and pings a pgx pool. With Database.UseIAM the password is
// replaced by a DSQL auth token.
func NewPool(ctx context.Context, config *restmodel.Config) (*pgxpool.Pool, error) {
	db := config.Database

	var password string
	if db.UseIAM {
		token, err := tokenGenerator(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("generate IAM auth token: %w", err)
		}
		password = token
		zap.S().Infow("using IAM auth token for Postgres", "host", db.Host)
	}

	poolConfig, err := pgxpool.ParseConfig(ConnString(db, password))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConnections)
	poolConfig.MinConns = int32(db.MaxIdleConns)
	poolConfig.MaxConnLifetime = db.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = db.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = db.Timeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func generateIAMToken(ctx context.Context, db restmodel.DatabaseConfig) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(db.AWSRegion))
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	endpoint := fmt.Sprintf("%s:%d", db.Host, db.Port)
	return auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
}

// NewGenerator builds the configured instance generator.
func NewGenerator(config *restmodel.Config) restmodel.InstanceGenerator {
	g := config.Generator
	if g.Mode == "remote" {
		breaker := internal.NewCircuitBreaker(g.FailureThreshold, g.FailureWindow, g.OpenDuration)
		return internal.NewHTTPGenerator(g.Endpoint, &http.Client{}, g.Timeout, breaker)
	}
	return internal.NewLocalGenerator(g.Seed)
}

// NewSchemaCache returns the Redis backed cache, or nil when caching is
// disabled. The returned client must be closed by the caller.
func NewSchemaCache(config *restmodel.Config) (restmodel.SchemaCache, *redis.Client) {
	c := config.Cache
	if !c.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	return internal.NewRedisSchemaCache(client, c.KeyPrefix, c.TTL), client
}

// NewModelServiceWithConfig creates a ModelService over a migrated database.
// cache may be nil.
//
// Usage:
//
//	cfg, _ := restmodel.LoadConfig("restmodel.yaml")
//	pool, err := factory.NewPool(ctx, cfg)
//	if err != nil {
//	    // handle error
//	}
//	cache, client := factory.NewSchemaCache(cfg)
//	svc, err := factory.NewModelServiceWithConfig(ctx, cfg, pool, cache)
func NewModelServiceWithConfig(
	ctx context.Context,
	config *restmodel.Config,
	pool Pool,
	cache restmodel.SchemaCache,
) (restmodel.ModelService, error) {
	if config == nil {
		config = restmodel.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tables, err := tableCollector(ctx, pool)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, table := range internal.GraphTables {
		if !slices.Contains(tables, table) {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required tables are missing in the database: %v", missing)
	}

	if config.Telemetry.Enabled {
		internal.RegisterTelemetryEmitter(internal.NewOTelEmitter(config.Telemetry.MeterName))
	}

	store := internal.NewPostgresStore(pool)
	zap.S().Infow("model service ready",
		"generator", config.Generator.Mode,
		"cache", cache != nil,
		"attributeOrder", config.Mock.AttributeOrder)
	return internal.NewModelService(store, NewGenerator(config), cache, config), nil
}

// NewMemoryModelService serves a fixture file without a database.
func NewMemoryModelService(config *restmodel.Config, fixturePath string) (restmodel.ModelService, error) {
	if config == nil {
		config = restmodel.DefaultConfig()
	}
	store, err := internal.LoadFixtureFile(fixturePath)
	if err != nil {
		return nil, err
	}
	return internal.NewModelService(store, NewGenerator(config), nil, config), nil
}

func collectTablesFromPool(ctx context.Context, pool queryPool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tables, nil
}
