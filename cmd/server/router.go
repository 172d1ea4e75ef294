package main

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lychee-technology/restmodel"
	"github.com/lychee-technology/restmodel/internal"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Server exposes a ModelService over HTTP.
type Server struct {
	service restmodel.ModelService
	engine  *gin.Engine
	checks  map[string]internal.HealthCheck
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a dependency check reported by /healthz.
func WithHealthCheck(name string, check internal.HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// NewServer creates the server and registers its routes.
func NewServer(service restmodel.ModelService, cfg restmodel.ServerConfig, opts ...Option) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog(), corsMiddleware(cfg.AllowedOrigins))

	s := &Server{service: service, engine: engine, checks: map[string]internal.HealthCheck{}}
	for _, opt := range opts {
		opt(s)
	}
	s.RegisterRoutes()
	return s
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	r := s.engine
	r.GET("/healthz", s.handleHealth)

	reps := r.Group("/resource_representations")
	{
		// :id may carry the .json_schema suffix.
		reps.GET("/:id", s.handleRepresentationSchema)
		reps.GET("/:id/json_schema", s.handleRepresentationSchema)
		reps.GET("/:id/rows", s.handleEditorRows)
		reps.PUT("/:id", s.handleUpdateRows)
		reps.DELETE("/:id", s.handleDeleteRepresentation)
	}

	r.DELETE("/resources/:id", s.handleDeleteResource)
	r.POST("/mock_profiles/:id/pickers", s.handleSavePicker)
	r.Any("/mocks/:profile_id/*path", s.handleMock)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.S().Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latencyMs", time.Since(start).Milliseconds(),
			"requestID", c.GetString(requestIDKey))
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
