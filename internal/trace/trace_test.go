package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitExportsSpansOnShutdown(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		auth  string
	)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	u, err := url.Parse(collector.URL)
	require.NoError(t, err)

	ctx := context.Background()
	shutdown, err := Init(ctx, Config{Endpoint: u.Host, URLPath: "/otlp/v1/traces", APIKey: "secret"})
	require.NoError(t, err)

	_, span := Tracer().Start(ctx, "agent.run")
	span.End()
	require.NoError(t, shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.Equal(t, "/otlp/v1/traces", paths[0])
	assert.Equal(t, "Bearer secret", auth)
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions(Config{}), 2)
	assert.Len(t, exporterOptions(Config{Endpoint: "localhost:4318", URLPath: "/v1/traces", APIKey: "k"}), 5)
}
