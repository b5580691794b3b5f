package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

const logOrderPath = "/api/v1/audit/log-order"

// ErrAuditRejected is returned when the audit service answers with a
// non-2xx status.
var ErrAuditRejected = errors.New("audit service rejected batch")

type AuditClient struct {
	endpoint   discovery.Endpoint
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAuditClient(endpoint discovery.Endpoint, timeout time.Duration, logger *zap.Logger) *AuditClient {
	return &AuditClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(zap.String("component", "AuditClient")),
	}
}

// LogOrder sends entries to the audit service and waits for its ack.
func (c *AuditClient) LogOrder(ctx context.Context, entries []models.AuditLogOrderUnit) (*models.AuditLogAck, error) {
	baseURL, err := c.endpoint.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audit service: %w", err)
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit entries: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+logOrderPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call audit service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrAuditRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ack models.AuditLogAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("failed to decode audit response: %w", err)
	}

	c.logger.Debug("Audit batch accepted",
		zap.Int("entries", len(entries)),
		zap.Int("logged", ack.Logged),
		zap.Int("duplicates", ack.Duplicates),
	)
	return &ack, nil
}
