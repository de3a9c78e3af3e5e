package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/config"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/observability"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

const maxResponseBytes = 8 << 20

var errServerStatus = errors.New("server error status")

// HTTPOptions configures an HTTPChannel.
type HTTPOptions struct {
	URL     string
	Timeout time.Duration
	// Client overrides the default client. Its jar should hold the refresh cookie.
	Client            *http.Client
	Breaker           config.BreakerConfig
	RetryAfterRefresh bool
	Metrics           *observability.Metrics
	Logger            *zap.Logger
}

// HTTPChannel sends queries and mutations as JSON POSTs.
type HTTPChannel struct {
	url               string
	client            *http.Client
	store             TokenSource
	breaker           *gobreaker.CircuitBreaker
	interceptors      []Interceptor
	retryAfterRefresh bool
	metrics           *observability.Metrics
	logger            *zap.Logger
}

type httpResult struct {
	status int
	header http.Header
	body   []byte
}

// NewHTTPChannel builds the request/response channel.
func NewHTTPChannel(opts HTTPOptions, store TokenSource) (*HTTPChannel, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("graphql http url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := opts.Client
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, Timeout: opts.Timeout}
	}

	ch := &HTTPChannel{
		url:               opts.URL,
		client:            client,
		store:             store,
		retryAfterRefresh: opts.RetryAfterRefresh,
		metrics:           opts.Metrics,
		logger:            logger,
	}
	if opts.Breaker.Enabled {
		ch.breaker = newBreaker("graphql-http", opts.Breaker, logger)
	}
	return ch, nil
}

func newBreaker(name string, cfg config.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Client exposes the underlying client so the refresh call shares its cookie jar.
func (c *HTTPChannel) Client() *http.Client {
	return c.client
}

// Use appends an interceptor. Interceptors run in registration order.
func (c *HTTPChannel) Use(interceptor Interceptor) {
	c.interceptors = append(c.interceptors, interceptor)
}

// Execute sends op and returns the decoded response. GraphQL errors come back
// as *graphql.ResponseError alongside the response; an expired credential
// becomes AUTHENTICATION_EXPIRED once interceptors have run.
func (c *HTTPChannel) Execute(ctx context.Context, op *graphql.Operation) (*graphql.Response, error) {
	resp, err := c.execute(ctx, op, c.retryAfterRefresh)
	c.metrics.RecordOperation(string(ChannelHTTP), string(op.Kind()), err)
	return resp, err
}

func (c *HTTPChannel) execute(ctx context.Context, op *graphql.Operation, allowRetry bool) (*graphql.Response, error) {
	res, err := c.do(ctx, op)
	if err != nil {
		return nil, err
	}

	resp, decodeErr := decodeResponse(res)
	ex := &Exchange{Operation: op, StatusCode: res.status, Header: res.header, Response: resp}
	for _, interceptor := range c.interceptors {
		interceptor.Intercept(ctx, ex)
	}

	if ex.Expired() && !op.Authenticates() {
		if ex.Refreshed && allowRetry {
			c.logger.Debug("resubmitting operation after refresh", zap.String("operation", op.Name))
			return c.execute(ctx, op, false)
		}
		return resp, apperrors.NewAuthenticationExpired(resp.ErrorMessage(graphql.CodeUnauthenticated), ex.Refreshed)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

func (c *HTTPChannel) do(ctx context.Context, op *graphql.Operation) (*httpResult, error) {
	if c.breaker == nil {
		return c.send(ctx, op)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		res, err := c.send(ctx, op)
		if err != nil {
			return nil, err
		}
		if res.status >= http.StatusInternalServerError {
			return res, errServerStatus
		}
		return res, nil
	})
	switch {
	case errors.Is(err, errServerStatus):
		return out.(*httpResult), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Warn("circuit breaker rejected operation", zap.String("operation", op.Name), zap.Error(err))
		return nil, apperrors.NewNetworkUnavailable(err)
	case err != nil:
		return nil, err
	}
	return out.(*httpResult), nil
}

func (c *HTTPChannel) send(ctx context.Context, op *graphql.Operation) (*httpResult, error) {
	body, err := op.Body()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", op.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	attachCredential(ctx, req.Header, op.Header, c.store)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewNetworkUnavailable(err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewNetworkUnavailable(err)
	}
	return &httpResult{status: httpResp.StatusCode, header: httpResp.Header, body: payload}, nil
}

// decodeResponse always returns a non-nil response so interceptors can inspect
// headers of undecodable bodies.
func decodeResponse(res *httpResult) (*graphql.Response, error) {
	resp := &graphql.Response{}
	if len(bytes.TrimSpace(res.body)) == 0 {
		if res.status >= http.StatusBadRequest {
			return resp, fmt.Errorf("graphql: unexpected status %d", res.status)
		}
		return resp, fmt.Errorf("graphql: empty response")
	}
	if err := json.Unmarshal(res.body, resp); err != nil {
		return &graphql.Response{}, fmt.Errorf("graphql: decode response (status %d): %w", res.status, err)
	}
	if res.status >= http.StatusBadRequest && len(resp.Errors) == 0 && len(resp.Data) == 0 {
		return resp, fmt.Errorf("graphql: unexpected status %d", res.status)
	}
	return resp, nil
}
