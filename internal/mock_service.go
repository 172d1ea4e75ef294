package internal

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/lychee-technology/restmodel"
	"go.uber.org/zap"
)

// MockServer answers mock requests of a profile: it resolves the route,
// selects a picker and renders the response body.
type MockServer struct {
	repo    restmodel.MockRepository
	matcher *Matcher
	builder *BodyBuilder
}

// NewMockServer creates a mock server.
func NewMockServer(repo restmodel.MockRepository, matcher *Matcher, builder *BodyBuilder) *MockServer {
	return &MockServer{repo: repo, matcher: matcher, builder: builder}
}

// Serve renders the mock answer for one request.
func (s *MockServer) Serve(ctx context.Context, req restmodel.MockRequest) (*restmodel.MockResult, error) {
	profile, err := s.repo.GetMockProfile(ctx, req.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("load mock profile: %w", err)
	}
	routes, err := s.repo.ListRoutes(ctx, profile.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}

	path := requestPath(req.URL)
	route := ResolveRoute(routes, req.Method, path)
	if route == nil {
		e := restmodel.NewNotFoundError("route", strings.ToUpper(req.Method)+" "+path)
		e.Code = restmodel.ErrCodeRouteNotFound
		return nil, e
	}
	if len(route.Responses) == 0 {
		return nil, restmodel.NewNotFoundError("response of route", route.Name)
	}

	all, err := s.repo.ListPickers(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("list pickers: %w", err)
	}
	pickers := routePickers(all, route)

	picker, err := s.matcher.Select(pickers, req.URL, req.Body)
	if err != nil {
		return nil, err
	}
	EmitPickerSelection(ctx, picker != nil)

	resp := &route.Responses[0]
	result := &restmodel.MockResult{RouteID: route.ID}
	if picker != nil {
		resp = responseByID(route, picker.ResponseID)
		result.PickerID = picker.ID
	}
	zap.S().Debugw("serving mock", "profile", profile.ID, "route", route.Name, "response", resp.ID, "picker", result.PickerID)

	body, err := s.builder.Build(ctx, resp, picker)
	if err != nil {
		return nil, fmt.Errorf("build body for response %d: %w", resp.ID, err)
	}
	result.ResponseID = resp.ID
	result.StatusCode = resp.Status()
	result.Body = body
	return result, nil
}

// routePickers keeps the pickers answering one of the route's responses, in
// their stored order.
func routePickers(pickers []restmodel.MockPicker, route *restmodel.Route) []restmodel.MockPicker {
	out := make([]restmodel.MockPicker, 0, len(pickers))
	for _, p := range pickers {
		if responseByID(route, p.ResponseID) != nil {
			out = append(out, p)
		}
	}
	return out
}

func responseByID(route *restmodel.Route, id int64) *restmodel.Response {
	for i := range route.Responses {
		if route.Responses[i].ID == id {
			return &route.Responses[i]
		}
	}
	return nil
}

func requestPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// ResolveRoute finds the route for a method and path. Template segments
// written as ":name" or "{name}" match any single segment. When several
// routes match, the one with the most literal segments wins, then the lowest
// id.
func ResolveRoute(routes []restmodel.Route, method, path string) *restmodel.Route {
	var (
		best      *restmodel.Route
		bestScore = -1
	)
	for i := range routes {
		r := &routes[i]
		if !strings.EqualFold(r.HTTPMethod, method) {
			continue
		}
		score, ok := matchTemplate(requestPath(r.URL), path)
		if !ok {
			continue
		}
		if score > bestScore || (score == bestScore && cmp.Less(r.ID, best.ID)) {
			best, bestScore = r, score
		}
	}
	return best
}

// matchTemplate reports whether path fits the template and how many literal
// segments it matched.
func matchTemplate(template, path string) (int, bool) {
	tmpl := splitPath(template)
	segs := splitPath(path)
	if len(tmpl) != len(segs) {
		return 0, false
	}
	literal := 0
	for i, t := range tmpl {
		if isParam(t) {
			if segs[i] == "" {
				return 0, false
			}
			continue
		}
		if t != segs[i] {
			return 0, false
		}
		literal++
	}
	return literal, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return slices.Collect(strings.SplitSeq(p, "/"))
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, ":") || (strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"))
}
