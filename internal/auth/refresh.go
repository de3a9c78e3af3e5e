package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/events"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/observability"
	"github.com/spec-kit/collab-client/internal/repository"
	"github.com/spec-kit/collab-client/internal/transport"
)

// Refresher exchanges the ambient refresh cookie for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// HTTPRefresher posts to the refresh endpoint. It never sends the bearer
// token; the client's cookie jar carries the refresh cookie.
type HTTPRefresher struct {
	url    string
	client *http.Client
}

// NewHTTPRefresher builds a refresher sharing client's cookie jar.
func NewHTTPRefresher(url string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRefresher{url: url, client: client}
}

// Refresh returns the new access token.
func (r *HTTPRefresher) Refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("refresh rejected: status %d", resp.StatusCode)
	}

	var payload domain.RefreshPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return payload.AccessToken, nil
}

// InterceptorOptions configures a RefreshInterceptor.
type InterceptorOptions struct {
	TokenHeader string
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// RefreshInterceptor keeps the stored credential current. It applies rotated
// tokens from response headers and, on an expiry signal, performs exactly one
// refresh call per failed response. It never retries the operation itself.
type RefreshInterceptor struct {
	store       repository.CredentialStore
	refresher   Refresher
	dispatcher  events.Dispatcher
	tokenHeader string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewRefreshInterceptor wires the interceptor.
func NewRefreshInterceptor(store repository.CredentialStore, refresher Refresher, dispatcher events.Dispatcher, opts InterceptorOptions) *RefreshInterceptor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	header := opts.TokenHeader
	if header == "" {
		header = "x-access-token"
	}
	return &RefreshInterceptor{
		store:       store,
		refresher:   refresher,
		dispatcher:  dispatcher,
		tokenHeader: header,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// Intercept implements transport.Interceptor.
func (i *RefreshInterceptor) Intercept(ctx context.Context, ex *transport.Exchange) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("refresh interceptor panic", zap.Any("panic", r))
		}
	}()

	// credential writes are not cut short by the caller's cancellation
	ctx = context.WithoutCancel(ctx)
	op := ex.Operation

	if token := ex.Header.Get(i.tokenHeader); token != "" {
		i.rotate(ctx, token, events.SourceHeader, op)
	}

	if op == nil || op.Authenticates() || !ex.Expired() {
		return
	}

	token, err := i.refresher.Refresh(ctx)
	i.metrics.RecordRefresh(err)
	if err != nil {
		i.revoke(ctx, op, err)
		return
	}
	if !i.rotate(ctx, token, events.SourceRefresh, op) {
		return
	}
	op.SetHeader("Authorization", "Bearer "+token)
	ex.Refreshed = true
}

func (i *RefreshInterceptor) rotate(ctx context.Context, token, source string, op *graphql.Operation) bool {
	if err := i.store.Set(ctx, token); err != nil {
		i.logger.Error("store rotated credential", zap.String("source", source), zap.Error(err))
		return false
	}
	i.metrics.RecordRotation(source)

	fields := []zap.Field{zap.String("source", source), zap.String("operation", opName(op))}
	if info, err := Inspect(token); err == nil {
		fields = append(fields, zap.String("subject", info.Subject), zap.Time("expires_at", info.ExpiresAt))
	}
	i.logger.Debug("credential rotated", fields...)

	i.publish(ctx, events.New(events.EventCredentialRotated, events.CredentialRotatedPayload{
		Source:    source,
		Operation: opName(op),
	}))
	return true
}

func (i *RefreshInterceptor) revoke(ctx context.Context, op *graphql.Operation, cause error) {
	i.logger.Warn("credential refresh failed; signing out",
		zap.String("operation", opName(op)), zap.Error(cause))
	if err := i.store.Clear(ctx); err != nil {
		i.logger.Error("clear credential", zap.Error(err))
	}
	i.publish(ctx, events.New(events.EventCredentialRevoked, events.CredentialRevokedPayload{
		Reason:    cause.Error(),
		Operation: opName(op),
	}))
}

func (i *RefreshInterceptor) publish(ctx context.Context, event events.Event) {
	if i.dispatcher == nil {
		return
	}
	_ = i.dispatcher.Publish(ctx, event)
}

func opName(op *graphql.Operation) string {
	if op == nil {
		return ""
	}
	return op.Name
}
