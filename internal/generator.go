package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
	"go.uber.org/zap"
)

// HTTPGenerator calls a remote random instance service: the schema is POSTed
// as JSON and the response body is the generated instance.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	breaker  *CircuitBreaker
}

// NewHTTPGenerator creates a remote generator. A nil client uses
// http.DefaultClient; a nil breaker never opens.
func NewHTTPGenerator(endpoint string, client *http.Client, timeout time.Duration, breaker *CircuitBreaker) *HTTPGenerator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		client:   client,
		timeout:  timeout,
		breaker:  breaker,
	}
}

// Generate implements restmodel.InstanceGenerator. Failures are not retried.
func (g *HTTPGenerator) Generate(ctx context.Context, schema *jsonschema.Schema) (any, error) {
	if g.breaker.IsOpen() {
		e := restmodel.NewGeneratorUnavailableError("generator circuit is open", nil)
		e.Code = restmodel.ErrCodeGeneratorCircuitOpen
		return nil, e
	}

	start := time.Now()
	out, err := g.call(ctx, schema)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		g.breaker.RecordFailure()
		EmitGeneratorLatency(ctx, "remote", false, elapsed)
		zap.S().Warnw("instance generator call failed", "endpoint", g.endpoint, "error", err)
		return nil, restmodel.NewGeneratorUnavailableError("generate instance", err)
	}
	g.breaker.RecordSuccess()
	EmitGeneratorLatency(ctx, "remote", true, elapsed)
	return out, nil
}

func (g *HTTPGenerator) call(ctx context.Context, schema *jsonschema.Schema) (any, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post schema: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generator returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
