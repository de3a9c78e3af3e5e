package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-client/internal/config"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/repository"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

type recordingServer struct {
	*httptest.Server
	mu      sync.Mutex
	auth    []string
	hasAuth []bool
	bodies  []string
	calls   atomic.Int32
}

func newRecordingServer(t *testing.T, handler func(call int, w http.ResponseWriter, r *http.Request)) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, present := r.Header["Authorization"]
		rs.mu.Lock()
		rs.auth = append(rs.auth, r.Header.Get("Authorization"))
		rs.hasAuth = append(rs.hasAuth, present)
		rs.bodies = append(rs.bodies, string(body))
		rs.mu.Unlock()
		call := int(rs.calls.Add(1))
		w.Header().Set("Content-Type", "application/json")
		handler(call, w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func okHandler(_ int, w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte(`{"data":{"me":{"id":"1","name":"Ada","email":"ada@example.com"}}}`))
}

func unauthenticatedBody() string {
	return `{"errors":[{"message":"jwt expired","extensions":{"code":"UNAUTHENTICATED"}}],"data":null}`
}

func newTestChannel(t *testing.T, url string, store repository.CredentialStore, mutate func(*HTTPOptions)) *HTTPChannel {
	t.Helper()
	opts := HTTPOptions{URL: url}
	if mutate != nil {
		mutate(&opts)
	}
	ch, err := NewHTTPChannel(opts, store)
	require.NoError(t, err)
	return ch
}

func TestHTTPChannel_OmitsAuthorizationWithoutCredential(t *testing.T) {
	srv := newRecordingServer(t, okHandler)
	store := repository.NewMemoryCredentialStore()
	ch := newTestChannel(t, srv.URL, store, nil)

	op := graphql.Me()
	op.SetHeader("Authorization", "Bearer stale")
	_, err := ch.Execute(context.Background(), op)
	require.NoError(t, err)

	require.Len(t, srv.hasAuth, 1)
	assert.False(t, srv.hasAuth[0], "no Authorization header may be sent without a credential")
}

func TestHTTPChannel_AttachesBearerFromStore(t *testing.T) {
	srv := newRecordingServer(t, okHandler)
	store := repository.NewMemoryCredentialStore()
	require.NoError(t, store.Set(context.Background(), "tok-1"))
	ch := newTestChannel(t, srv.URL, store, nil)

	resp, err := ch.Execute(context.Background(), graphql.Me())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer tok-1"}, srv.auth)
	assert.Contains(t, srv.bodies[0], `"operationName":"Me"`)
	ok, err := resp.Decode("me", &struct{ ID string }{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPChannel_InterceptorsRunBeforeReturn(t *testing.T) {
	srv := newRecordingServer(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-access-token", "rotated")
		okHandler(0, w, r)
	})
	store := repository.NewMemoryCredentialStore()
	ch := newTestChannel(t, srv.URL, store, nil)

	var seen []string
	ch.Use(InterceptorFunc(func(ctx context.Context, ex *Exchange) {
		seen = append(seen, ex.Header.Get("x-access-token"))
		_ = store.Set(ctx, ex.Header.Get("x-access-token"))
	}))

	_, err := ch.Execute(context.Background(), graphql.Me())
	require.NoError(t, err)
	assert.Equal(t, []string{"rotated"}, seen)

	_, err = ch.Execute(context.Background(), graphql.Me())
	require.NoError(t, err)
	assert.Equal(t, "Bearer rotated", srv.auth[1])
}

func TestHTTPChannel_Unauthenticated(t *testing.T) {
	srv := newRecordingServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(unauthenticatedBody()))
	})
	ch := newTestChannel(t, srv.URL, repository.NewMemoryCredentialStore(), nil)

	_, err := ch.Execute(context.Background(), graphql.Me())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthenticationExpired))
	assert.False(t, apperrors.TokenRefreshed(err))
}

func TestHTTPChannel_StatusUnauthorizedWithoutBody(t *testing.T) {
	srv := newRecordingServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	ch := newTestChannel(t, srv.URL, repository.NewMemoryCredentialStore(), nil)

	_, err := ch.Execute(context.Background(), graphql.Me())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthenticationExpired))
}

func TestHTTPChannel_LoginRejectionIsNotExpiry(t *testing.T) {
	srv := newRecordingServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Invalid email or password","extensions":{"code":"UNAUTHENTICATED"}}]}`))
	})
	ch := newTestChannel(t, srv.URL, repository.NewMemoryCredentialStore(), nil)

	_, err := ch.Execute(context.Background(), graphql.Login("a@b.c", "nope"))
	var respErr *graphql.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "Invalid email or password", respErr.Message())
}

func TestHTTPChannel_RetryAfterRefresh(t *testing.T) {
	srv := newRecordingServer(t, func(call int, w http.ResponseWriter, r *http.Request) {
		if call == 1 {
			_, _ = w.Write([]byte(unauthenticatedBody()))
			return
		}
		okHandler(call, w, r)
	})
	store := repository.NewMemoryCredentialStore()
	require.NoError(t, store.Set(context.Background(), "old"))

	refresher := InterceptorFunc(func(ctx context.Context, ex *Exchange) {
		if ex.Expired() {
			_ = store.Set(ctx, "new")
			ex.Refreshed = true
		}
	})

	t.Run("disabled by default", func(t *testing.T) {
		srv.calls.Store(0)
		ch := newTestChannel(t, srv.URL, store, nil)
		ch.Use(refresher)
		_, err := ch.Execute(context.Background(), graphql.Me())
		require.Error(t, err)
		assert.True(t, apperrors.TokenRefreshed(err))
		assert.EqualValues(t, 1, srv.calls.Load())
	})

	t.Run("enabled", func(t *testing.T) {
		srv.calls.Store(0)
		_ = store.Set(context.Background(), "old")
		ch := newTestChannel(t, srv.URL, store, func(o *HTTPOptions) { o.RetryAfterRefresh = true })
		ch.Use(refresher)
		_, err := ch.Execute(context.Background(), graphql.Me())
		require.NoError(t, err)
		assert.EqualValues(t, 2, srv.calls.Load())
		assert.Equal(t, "Bearer new", srv.auth[len(srv.auth)-1])
	})
}

func TestHTTPChannel_GraphQLErrors(t *testing.T) {
	srv := newRecordingServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Task not found","extensions":{"code":"NOT_FOUND"}}],"data":{"task":null}}`))
	})
	ch := newTestChannel(t, srv.URL, repository.NewMemoryCredentialStore(), nil)

	resp, err := ch.Execute(context.Background(), graphql.Task("9"))
	var respErr *graphql.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "NOT_FOUND", respErr.Code())
	require.NotNil(t, resp)
}

func TestHTTPChannel_BreakerOpens(t *testing.T) {
	srv := newRecordingServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	ch := newTestChannel(t, srv.URL, repository.NewMemoryCredentialStore(), func(o *HTTPOptions) {
		o.Breaker = config.BreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			IntervalSeconds:  60,
			TimeoutSeconds:   60,
			MinRequests:      2,
			FailureThreshold: 0.5,
		}
	})

	for i := 0; i < 2; i++ {
		_, err := ch.Execute(context.Background(), graphql.Me())
		require.Error(t, err)
		assert.False(t, apperrors.HasCode(err, apperrors.CodeNetworkUnavailable))
	}

	_, err := ch.Execute(context.Background(), graphql.Me())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNetworkUnavailable))
	assert.EqualValues(t, 2, srv.calls.Load(), "open breaker must not reach the server")
}

func TestHTTPChannel_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ch := newTestChannel(t, url, repository.NewMemoryCredentialStore(), nil)
	_, err := ch.Execute(context.Background(), graphql.Me())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNetworkUnavailable))
}
