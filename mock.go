package restmodel

// Route is an HTTP endpoint of a Resource.
type Route struct {
	ID                int64      `json:"id" yaml:"id"`
	ResourceID        int64      `json:"resource_id" yaml:"resource_id"`
	Name              string     `json:"name" yaml:"name"`
	Description       string     `json:"description,omitempty" yaml:"description,omitempty"`
	HTTPMethod        string     `json:"http_method" yaml:"http_method"`
	URL               string     `json:"url" yaml:"url"`
	RequestBodySchema string     `json:"request_body_schema,omitempty" yaml:"request_body_schema,omitempty"`
	Responses         []Response `json:"responses,omitempty" yaml:"responses,omitempty"`
}

// Response is one possible answer of a Route. The body shape comes from
// RepresentationID when set, else from the raw BodySchema.
type Response struct {
	ID               int64  `json:"id" yaml:"id"`
	RouteID          int64  `json:"route_id" yaml:"route_id"`
	StatusCode       int    `json:"status_code" yaml:"status_code"`
	BodySchema       string `json:"body_schema,omitempty" yaml:"body_schema,omitempty"`
	RepresentationID *int64 `json:"resource_representation_id,omitempty" yaml:"resource_representation_id,omitempty"`
	IsCollection     bool   `json:"is_collection" yaml:"is_collection"`
	RootKey          string `json:"root_key,omitempty" yaml:"root_key,omitempty"`
}

// Options returns the wrapping options the response renders with.
func (r *Response) Options() CompileOptions {
	return CompileOptions{IsCollection: r.IsCollection, RootKey: r.RootKey}
}

// Status returns the response status code, 200 when unset.
func (r *Response) Status() int {
	if r.StatusCode == 0 {
		return 200
	}
	return r.StatusCode
}

// MockProfile groups the pickers a mock server answers with.
type MockProfile struct {
	ID        int64  `json:"id" yaml:"id"`
	ProjectID int64  `json:"project_id" yaml:"project_id"`
	Name      string `json:"name" yaml:"name"`
}

// MockPicker selects bound instances for a Response when the request matches
// its patterns. Blank patterns match everything.
type MockPicker struct {
	ID            int64   `json:"id" yaml:"id"`
	MockProfileID int64   `json:"mock_profile_id" yaml:"mock_profile_id"`
	ResponseID    int64   `json:"response_id" yaml:"response_id"`
	Position      int     `json:"position" yaml:"position"`
	BodyPattern   string  `json:"body_pattern,omitempty" yaml:"body_pattern,omitempty"`
	URLPattern    string  `json:"url_pattern,omitempty" yaml:"url_pattern,omitempty"`
	InstanceIDs   []int64 `json:"resource_instance_ids,omitempty" yaml:"resource_instance_ids,omitempty"`
}

// ResourceInstance is pre-recorded entity data usable as a mock body.
type ResourceInstance struct {
	ID         int64          `json:"id" yaml:"id"`
	ResourceID int64          `json:"resource_id" yaml:"resource_id"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Content    map[string]any `json:"content" yaml:"content"`
}

// MockRequest is an inbound request against a mock profile.
type MockRequest struct {
	ProfileID int64
	Method    string
	URL       string
	Body      string
}

// MockResult is the rendered mock answer.
type MockResult struct {
	StatusCode int   `json:"status_code"`
	Body       any   `json:"body"`
	RouteID    int64 `json:"route_id"`
	ResponseID int64 `json:"response_id"`
	PickerID   int64 `json:"picker_id,omitempty"`
}
