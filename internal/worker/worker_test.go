package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/events"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/transport"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

type countingReconnector struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconnector) Reconnect(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func rotated() events.Event {
	return events.New(events.EventCredentialRotated, events.CredentialRotatedPayload{Source: events.SourceHeader})
}

func TestReconnectWorker_ReconnectsOnRotation(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	stream := &countingReconnector{}
	stop := StartReconnectWorker(dispatcher, stream, nil)

	require.NoError(t, dispatcher.Publish(context.Background(), rotated()))
	assert.Eventually(t, func() bool { return stream.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	stop()
	before := stream.calls.Load()
	require.NoError(t, dispatcher.Publish(context.Background(), rotated()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, stream.calls.Load(), "no reconnect after stop")
	stop()
}

func TestReconnectWorker_IgnoresOtherEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	stream := &countingReconnector{err: errors.New("dial failed")}
	stop := StartReconnectWorker(dispatcher, stream, nil)
	defer stop()

	require.NoError(t, dispatcher.Publish(context.Background(),
		events.New(events.EventCredentialRevoked, events.CredentialRevokedPayload{Reason: "x"})))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, stream.calls.Load())

	require.NoError(t, dispatcher.Publish(context.Background(), rotated()))
	assert.Eventually(t, func() bool { return stream.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

type recordingDisconnector struct {
	mu      sync.Mutex
	reasons []error
}

func (d *recordingDisconnector) Disconnect(reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
}

func TestDisconnectOnCredentialCleared(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	stream := &recordingDisconnector{}
	stop := DisconnectOnCredentialCleared(dispatcher, stream, nil)
	ctx := context.Background()

	require.NoError(t, dispatcher.Publish(ctx, rotated()))
	assert.Empty(t, stream.reasons)

	require.NoError(t, dispatcher.Publish(ctx,
		events.New(events.EventCredentialCleared, events.CredentialClearedPayload{Reason: "logout"})))
	require.Len(t, stream.reasons, 1, "disconnect happens before Publish returns")
	assert.True(t, apperrors.HasCode(stream.reasons[0], apperrors.CodeUnauthorized))
	assert.Contains(t, stream.reasons[0].Error(), "logout")

	stop()
	require.NoError(t, dispatcher.Publish(ctx,
		events.New(events.EventCredentialCleared, events.CredentialClearedPayload{Reason: "logout"})))
	assert.Len(t, stream.reasons, 1)
}

type staticExecutor struct {
	resp *graphql.Response
}

func (e staticExecutor) Execute(context.Context, *graphql.Operation) (*graphql.Response, error) {
	return e.resp, nil
}

type failingStreamer struct{}

func (failingStreamer) Subscribe(context.Context, *graphql.Operation) (*transport.Subscription, error) {
	return nil, errors.New("stream unavailable")
}

func TestSubscriptionWorker_AppliesEventsToCache(t *testing.T) {
	resp := &graphql.Response{Data: json.RawMessage(`{"task":{"id":"t1","title":"Ship"}}`)}
	router := transport.NewRouter(staticExecutor{resp: resp}, failingStreamer{}, nil)
	graph := cache.NewGraph(nil)
	w := NewSubscriptionWorker(router, cache.NewUpdater(graph, nil, nil), nil)

	var mu sync.Mutex
	var received []transport.Event
	require.NoError(t, w.Watch(context.Background(), graphql.Task("t1"), func(ev transport.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	}))
	w.Wait()

	require.Len(t, received, 1)
	assert.Same(t, resp, received[0].Response)
	assert.True(t, graph.Has(cache.EntityKey{Type: "Task", ID: "t1"}))
}

func TestSubscriptionWorker_SubscribeFailure(t *testing.T) {
	router := transport.NewRouter(staticExecutor{}, failingStreamer{}, nil)
	w := NewSubscriptionWorker(router, nil, nil)

	err := w.Watch(context.Background(), graphql.TaskUpdated("p1"), nil)
	assert.EqualError(t, err, "stream unavailable")
	w.Wait()
}
