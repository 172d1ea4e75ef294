package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lychee-technology/restmodel"
	"github.com/lychee-technology/restmodel/factory"
	"github.com/lychee-technology/restmodel/internal"
	"go.uber.org/zap"
)

// Start serves until ctx is cancelled, then drains within the shutdown timeout.
func (s *Server) Start(ctx context.Context, cfg restmodel.ServerConfig) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.S().Infow("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	zap.S().Infow("shutting down server")
	return srv.Shutdown(shutdownCtx)
}

func main() {
	cfg, err := restmodel.LoadConfig(os.Getenv("RESTMODEL_CONFIG"))
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		service restmodel.ModelService
		opts    []Option
	)
	if fixture := os.Getenv("RESTMODEL_FIXTURE"); fixture != "" {
		// Serve a fixture graph without a database.
		service, err = factory.NewMemoryModelService(cfg, fixture)
		if err != nil {
			sugar.Fatalf("failed to load fixture: %v", err)
		}
		sugar.Infow("serving fixture graph", "path", fixture)
	} else {
		pool, err := factory.NewPool(ctx, cfg)
		if err != nil {
			sugar.Fatalf("failed to create database pool: %v", err)
		}
		defer pool.Close()

		opts = append(opts, WithHealthCheck("postgres", internal.PostgresHealthCheck(pool, cfg.Database.Timeout)))

		cache, client := factory.NewSchemaCache(cfg)
		if client != nil {
			defer client.Close()
			opts = append(opts, WithHealthCheck("redis", internal.RedisHealthCheck(client, 0)))
		}

		service, err = factory.NewModelServiceWithConfig(ctx, cfg, pool, cache)
		if err != nil {
			sugar.Fatalf("failed to create model service: %v", err)
		}
	}

	server := NewServer(service, cfg.Server, opts...)
	if err := server.Start(ctx, cfg.Server); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}
