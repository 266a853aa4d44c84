package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/softrade/brokerdesk/internal/config"
	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/model"
)

// CallInput carries the parameters of one operation execution.
type CallInput struct {
	PathParams  map[string]string
	QueryParams map[string]string
	Body        any
}

// Client executes rebate API operations by operationId. There is no retry
// and no circuit breaker here: a failed call surfaces immediately and the
// user re-triggers the action.
type Client struct {
	index   *Index
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewClient creates a client for the rebate API.
func NewClient(idx *Index, cfg config.BackendConfig, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		index:   idx,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Call executes one indexed operation and decodes the response envelope.
// A success=false envelope becomes a BACKEND_REJECTED error carrying the
// service's message verbatim; transport failures become BACKEND_UNAVAILABLE
// or BACKEND_TIMEOUT.
func (c *Client) Call(ctx context.Context, operationID string, input CallInput) (*model.Envelope, error) {
	op, ok := c.index.Operation(operationID)
	if !ok {
		c.logger.Error("unknown backend operation", zap.String("operation_id", operationID))
		return nil, model.NewInternalError()
	}

	reqURL := c.buildURL(op, input)

	var body io.Reader
	if input.Body != nil {
		raw, err := json.Marshal(input.Body)
		if err != nil {
			return nil, fmt.Errorf("backend: marshal body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	c.setHeaders(ctx, req, op.Method)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.record(operationID, "transport_error", start)
		if isConnectionError(err) {
			return nil, model.NewBackendUnavailableError()
		}
		if ctx.Err() != nil || isTimeoutError(err) {
			return nil, model.NewBackendTimeoutError()
		}
		return nil, fmt.Errorf("backend: %s request failed: %w", operationID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		c.record(operationID, "read_error", start)
		return nil, fmt.Errorf("backend: read response: %w", err)
	}

	var env model.Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		c.record(operationID, "decode_error", start)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, model.NewBackendUnavailableError()
		}
		return nil, fmt.Errorf("backend: decode %s response: %w", operationID, err)
	}

	if !env.Success {
		c.record(operationID, "rejected", start)
		if c.metrics != nil {
			c.metrics.RecordBackendRejection(operationID)
		}
		return nil, model.NewBackendRejectedError(env.Message)
	}

	c.record(operationID, "ok", start)
	return &env, nil
}

func (c *Client) buildURL(op IndexedOperation, input CallInput) string {
	path := op.PathTemplate
	for name, value := range input.PathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}

	result := c.baseURL + path
	if len(input.QueryParams) > 0 {
		params := url.Values{}
		for k, v := range input.QueryParams {
			if v != "" {
				params.Set(k, v)
			}
		}
		if encoded := params.Encode(); encoded != "" {
			result += "?" + encoded
		}
	}
	return result
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, method string) {
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if rctx.Token != "" {
			req.Header.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
		}
		req.Header.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		req.Header.Set("X-Request-Subject", sanitizeHeader(rctx.SubjectID))
		if rctx.Locale != "" {
			req.Header.Set("Accept-Language", sanitizeHeader(rctx.Locale))
		}
	}
	observability.InjectTraceHeaders(ctx, req.Header)
}

func (c *Client) record(operationID, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordBackendRequest(operationID, status, time.Since(start))
	}
}

// sanitizeHeader strips newlines and carriage returns to prevent header
// injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
