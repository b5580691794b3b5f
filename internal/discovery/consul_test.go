package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConsul serves the agent and health endpoints the client touches.
func fakeConsul(t *testing.T, healthBody string, healthCode int) *ConsulClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/status/leader":
			w.Write([]byte(`"127.0.0.1:8300"`))
		case strings.HasPrefix(r.URL.Path, "/v1/health/service/"):
			assert.Equal(t, "1", r.URL.Query().Get("passing"))
			w.WriteHeader(healthCode)
			w.Write([]byte(healthBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewConsulClient(context.Background(), strings.TrimPrefix(srv.URL, "http://"), zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestGetServiceURL(t *testing.T) {
	c := fakeConsul(t, `[{"Node":{"Address":"10.0.0.1"},"Service":{"Address":"10.0.0.5","Port":8082},"Checks":[]}]`, http.StatusOK)

	url, err := c.GetServiceURL(context.Background(), "order-service")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8082", url)
}

func TestGetServiceFallsBackToNodeAddress(t *testing.T) {
	c := fakeConsul(t, `[{"Node":{"Address":"10.0.0.1"},"Service":{"Address":"","Port":9000},"Checks":[]}]`, http.StatusOK)

	addr, port, err := c.GetService(context.Background(), "order-service")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", addr)
	assert.Equal(t, 9000, port)
}

func TestGetServiceNoInstances(t *testing.T) {
	c := fakeConsul(t, `[]`, http.StatusOK)

	_, err := c.GetServiceURL(context.Background(), "order-service")
	assert.ErrorIs(t, err, ErrNoHealthyInstance)
}

func TestConsulEndpointFallback(t *testing.T) {
	c := fakeConsul(t, `[]`, http.StatusOK)

	e := NewConsulEndpoint(c, "order-service", "http://localhost:8082", zap.NewNop())
	url, err := e.URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8082", url)

	e = NewConsulEndpoint(c, "order-service", "", zap.NewNop())
	_, err = e.URL(context.Background())
	assert.ErrorIs(t, err, ErrNoHealthyInstance)
}

func TestConsulEndpointLookupError(t *testing.T) {
	c := fakeConsul(t, `boom`, http.StatusInternalServerError)

	e := NewConsulEndpoint(c, "order-service", "http://fallback:1", zap.NewNop())
	url, err := e.URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://fallback:1", url)
}

func TestStaticEndpoint(t *testing.T) {
	url, err := StaticEndpoint("http://audit:8082").URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://audit:8082", url)
}

func TestNewConsulClientHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"127.0.0.1:8300"`))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewConsulClient(ctx, strings.TrimPrefix(srv.URL, "http://"), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}
