package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/restmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGenerator_PostsSchema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 7, "name": "eevee"}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, srv.Client(), time.Second, nil)
	schema := &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{"id": {Type: "integer"}}}

	out, err := g.Generate(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "eevee"}, out)
	assert.Equal(t, "object", got["type"])
}

func TestHTTPGenerator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "schema too deep", http.StatusInternalServerError)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g := NewHTTPGenerator(srv.URL, srv.Client(), tt.timeout, nil)
			_, err := g.Generate(context.Background(), &jsonschema.Schema{Type: "string"})
			require.Error(t, err)

			var rmErr *restmodel.Error
			require.ErrorAs(t, err, &rmErr)
			assert.Equal(t, restmodel.ErrorTypeGeneratorUnavailable, rmErr.Type)
			assert.Equal(t, restmodel.ErrCodeGeneratorFailed, rmErr.Code)
		})
	}
}

func TestHTTPGenerator_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := NewCircuitBreaker(2, time.Minute, time.Minute)
	g := NewHTTPGenerator(srv.URL, srv.Client(), time.Second, breaker)
	ctx := context.Background()
	schema := &jsonschema.Schema{Type: "string"}

	for range 2 {
		_, err := g.Generate(ctx, schema)
		require.Error(t, err)
	}
	require.True(t, breaker.IsOpen())

	_, err := g.Generate(ctx, schema)
	var rmErr *restmodel.Error
	require.ErrorAs(t, err, &rmErr)
	assert.Equal(t, restmodel.ErrCodeGeneratorCircuitOpen, rmErr.Code)
	assert.Equal(t, int32(2), calls.Load())
}
