package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lychee-technology/restmodel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const schemaSuffix = ".json_schema"

// APIResponse is the standard response format
type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps an error category to its HTTP status.
func statusFor(err error) int {
	switch restmodel.ErrorTypeOf(err) {
	case restmodel.ErrorTypeValidation, restmodel.ErrorTypePatternCompile:
		return http.StatusUnprocessableEntity
	case restmodel.ErrorTypeNotFound:
		return http.StatusNotFound
	case restmodel.ErrorTypeDeleteConflict:
		return http.StatusConflict
	case restmodel.ErrorTypeGeneratorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes an error response, hiding the message of unexpected
// failures.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := APIResponse{Success: false, Error: err.Error()}

	var e *restmodel.Error
	if errors.As(err, &e) {
		resp.Code = e.Code
		resp.Field = e.Field
		resp.Details = e.Details
	}
	if status == http.StatusInternalServerError {
		zap.S().Errorw("request failed", "path", c.FullPath(), "requestID", c.GetString(requestIDKey), "error", err)
		resp.Error = "internal error"
		resp.Details = nil
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, APIResponse{Success: false, Error: message})
}

// parseID reads a positive integer path parameter.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// splitSchemaSuffix separates "12.json_schema" into 12 and true.
func splitSchemaSuffix(raw string) (string, bool) {
	trimmed, ok := strings.CutSuffix(raw, schemaSuffix)
	return trimmed, ok
}

// falseFlags are the query values read as false; any other non-blank value
// is true.
var falseFlags = map[string]bool{
	"0": true, "f": true, "F": true, "false": true, "FALSE": true, "off": true, "OFF": true,
}

// queryFlag reads a boolean query parameter the way form checkboxes and
// Rails-style clients send it.
func queryFlag(c *gin.Context, name string) bool {
	raw := c.Query(name)
	return raw != "" && !falseFlags[raw]
}

// compileOptions reads is_collection and root_key from the query string.
func compileOptions(c *gin.Context) restmodel.CompileOptions {
	return restmodel.CompileOptions{
		IsCollection: queryFlag(c, "is_collection"),
		RootKey:      c.Query("root_key"),
	}
}

// newLogger builds the process logger from the logging settings.
func newLogger(cfg restmodel.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
