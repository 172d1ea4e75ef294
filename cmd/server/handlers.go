package main

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lychee-technology/restmodel"
	"github.com/lychee-technology/restmodel/internal"
	"go.uber.org/zap"
)

const (
	mockRouteHeader    = "X-Mock-Route-Id"
	mockResponseHeader = "X-Mock-Response-Id"
	mockPickerHeader   = "X-Mock-Picker-Id"
)

// updateRowsRequest is the body of PUT /resource_representations/:id.
type updateRowsRequest struct {
	Rows []restmodel.AttributeRepresentation `json:"attributes_resource_representations_attributes"`
}

func (s *Server) handleHealth(c *gin.Context) {
	failed := internal.CheckAll(c.Request.Context(), s.checks)
	if len(failed) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	details := make(map[string]string, len(failed))
	for name, err := range failed {
		zap.S().Warnw("health check failed", "check", name, "error", err)
		details[name] = err.Error()
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": details})
}

// handleRepresentationSchema handles GET /resource_representations/{id}.json_schema
// and GET /resource_representations/{id}/json_schema
func (s *Server) handleRepresentationSchema(c *gin.Context) {
	raw := c.Param("id")
	if c.FullPath() == "/resource_representations/:id" {
		trimmed, ok := splitSchemaSuffix(raw)
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, APIResponse{Success: false, Error: "not found"})
			return
		}
		raw = trimmed
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return
	}

	schema, err := s.service.CompileSchema(c.Request.Context(), id, compileOptions(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schema)
}

// handleEditorRows handles GET /resource_representations/{id}/rows
func (s *Server) handleEditorRows(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	rows, err := s.service.EditorRows(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: rows})
}

// handleUpdateRows handles PUT /resource_representations/{id}
func (s *Server) handleUpdateRows(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req updateRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := s.service.UpdateRepresentationRows(ctx, id, req.Rows); err != nil {
		writeError(c, err)
		return
	}
	rows, err := s.service.EditorRows(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: rows})
}

// handleDeleteRepresentation handles DELETE /resource_representations/{id}
func (s *Server) handleDeleteRepresentation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.service.DeleteRepresentation(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleDeleteResource handles DELETE /resources/{id}
func (s *Server) handleDeleteResource(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.service.DeleteResource(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSavePicker handles POST /mock_profiles/{id}/pickers. A body with an id
// replaces that picker.
func (s *Server) handleSavePicker(c *gin.Context) {
	profileID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var picker restmodel.MockPicker
	if err := c.ShouldBindJSON(&picker); err != nil {
		badRequest(c, "invalid json body: "+err.Error())
		return
	}
	picker.MockProfileID = profileID

	status := http.StatusCreated
	if picker.ID != 0 {
		status = http.StatusOK
	}
	if err := s.service.SaveMockPicker(c.Request.Context(), &picker); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, APIResponse{Success: true, Data: picker})
}

// handleMock answers any method under /mocks/{profile_id}/ with the mock body
// selected for the rest of the path.
func (s *Server) handleMock(c *gin.Context) {
	profileID, ok := parseID(c, "profile_id")
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "read body: "+err.Error())
		return
	}

	url := c.Param("path")
	if q := c.Request.URL.RawQuery; q != "" {
		url += "?" + q
	}
	result, err := s.service.ServeMock(c.Request.Context(), restmodel.MockRequest{
		ProfileID: profileID,
		Method:    c.Request.Method,
		URL:       url,
		Body:      string(body),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(mockRouteHeader, strconv.FormatInt(result.RouteID, 10))
	c.Header(mockResponseHeader, strconv.FormatInt(result.ResponseID, 10))
	if result.PickerID != 0 {
		c.Header(mockPickerHeader, strconv.FormatInt(result.PickerID, 10))
	}
	if result.Body == nil {
		c.Status(result.StatusCode)
		return
	}
	c.JSON(result.StatusCode, result.Body)
}
