package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

type failingEndpoint struct{ err error }

func (f failingEndpoint) URL(context.Context) (string, error) { return "", f.err }

func TestLogOrder(t *testing.T) {
	var received []models.AuditLogOrderUnit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/audit/log-order", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"logged":2,"duplicates":0}`))
	}))
	defer srv.Close()

	c := NewAuditClient(discovery.StaticEndpoint(srv.URL+"/"), time.Second, zap.NewNop())
	entries := []models.AuditLogOrderUnit{
		{EventID: "m1", OrderID: 1, OrderItemID: 10, CustomerID: 3, NewStatus: models.OrderStatusCreated},
		{EventID: "m1", OrderID: 1, OrderItemID: 11, CustomerID: 3, NewStatus: models.OrderStatusCreated},
	}

	ack, err := c.LogOrder(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, &models.AuditLogAck{Logged: 2}, ack)
	assert.Equal(t, entries, received)
}

func TestLogOrderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"entry 0: invalid audit entry"}`))
	}))
	defer srv.Close()

	c := NewAuditClient(discovery.StaticEndpoint(srv.URL), time.Second, zap.NewNop())
	_, err := c.LogOrder(context.Background(), nil)
	require.ErrorIs(t, err, ErrAuditRejected)
	assert.Contains(t, err.Error(), "400")
}

func TestLogOrderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewAuditClient(discovery.StaticEndpoint(url), time.Second, zap.NewNop())
	_, err := c.LogOrder(context.Background(), nil)
	assert.Error(t, err)
}

func TestLogOrderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewAuditClient(discovery.StaticEndpoint(srv.URL), 50*time.Millisecond, zap.NewNop())
	_, err := c.LogOrder(context.Background(), nil)
	assert.Error(t, err)
}

func TestLogOrderEndpointError(t *testing.T) {
	boom := errors.New("consul down")
	c := NewAuditClient(failingEndpoint{err: boom}, time.Second, zap.NewNop())
	_, err := c.LogOrder(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}
