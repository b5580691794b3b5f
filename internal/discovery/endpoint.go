package discovery

import (
	"context"

	"go.uber.org/zap"
)

// Endpoint yields the base URL of a remote service. It is consulted on
// every call so instances can move between calls.
type Endpoint interface {
	URL(ctx context.Context) (string, error)
}

// StaticEndpoint always returns the same URL.
type StaticEndpoint string

func (e StaticEndpoint) URL(context.Context) (string, error) {
	return string(e), nil
}

// ConsulEndpoint resolves a service through Consul and falls back to a
// fixed URL when the lookup fails or finds no healthy instance.
type ConsulEndpoint struct {
	consul   *ConsulClient
	service  string
	fallback string
	logger   *zap.Logger
}

func NewConsulEndpoint(consul *ConsulClient, service, fallback string, logger *zap.Logger) *ConsulEndpoint {
	return &ConsulEndpoint{
		consul:   consul,
		service:  service,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "ConsulEndpoint"), zap.String("service", service)),
	}
}

func (e *ConsulEndpoint) URL(ctx context.Context) (string, error) {
	url, err := e.consul.GetServiceURL(ctx, e.service)
	if err == nil {
		return url, nil
	}
	if e.fallback == "" {
		return "", err
	}
	e.logger.Warn("Service lookup failed, using fallback", zap.String("fallback", e.fallback), zap.Error(err))
	return e.fallback, nil
}
