package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-client/internal/graphql"
)

type fakeExecutor struct {
	mu       sync.Mutex
	ops      []*graphql.Operation
	ctxLive  []bool
	response *graphql.Response
}

func (f *fakeExecutor) Execute(ctx context.Context, op *graphql.Operation) (*graphql.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	f.ctxLive = append(f.ctxLive, ctx.Err() == nil)
	if f.response != nil {
		return f.response, nil
	}
	return &graphql.Response{Data: json.RawMessage(`{}`)}, nil
}

type fakeStreamer struct {
	mu   sync.Mutex
	ops  []*graphql.Operation
	push []Event
}

func (f *fakeStreamer) Subscribe(_ context.Context, op *graphql.Operation) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	sub := newSubscription("sub-1", op)
	for _, ev := range f.push {
		sub.deliver(ev)
	}
	return sub, nil
}

func TestRouter_Route(t *testing.T) {
	r := NewRouter(&fakeExecutor{}, &fakeStreamer{}, nil)

	assert.Equal(t, ChannelHTTP, r.Route(graphql.Me()))
	assert.Equal(t, ChannelHTTP, r.Route(graphql.AssignTaskMember("t", "u")))
	assert.Equal(t, ChannelStream, r.Route(graphql.TaskUpdated("p")))
	assert.Equal(t, ChannelStream, r.Route(graphql.NewOperation("x", "", "# note\nsubscription { x }", nil)))
}

func TestRouter_ChannelSplit(t *testing.T) {
	exec := &fakeExecutor{}
	stream := &fakeStreamer{}
	r := NewRouter(exec, stream, nil)
	ctx := context.Background()

	_, err := r.Execute(ctx, graphql.Me())
	require.NoError(t, err)
	_, err = r.Execute(ctx, graphql.DeleteTask("t1"))
	require.NoError(t, err)
	sub, err := r.Subscribe(ctx, graphql.WorkspaceUpdated())
	require.NoError(t, err)
	sub.Close()

	require.Len(t, exec.ops, 2)
	require.Len(t, stream.ops, 1)
	assert.Equal(t, graphql.FieldWorkspaceUpdated, stream.ops[0].Field)
}

func TestRouter_ExecuteSubscriptionReturnsFirstPayload(t *testing.T) {
	first := &graphql.Response{Data: json.RawMessage(`{"taskUpdated":{"id":"1"}}`)}
	stream := &fakeStreamer{push: []Event{{Response: first}, {Response: &graphql.Response{}}}}
	exec := &fakeExecutor{}
	r := NewRouter(exec, stream, nil)

	resp, err := r.Execute(context.Background(), graphql.TaskUpdated("p"))
	require.NoError(t, err)
	assert.Same(t, first, resp)
	assert.Empty(t, exec.ops, "subscriptions never go over HTTP")
}

func TestRouter_SubscribeQueryYieldsSingleEvent(t *testing.T) {
	resp := &graphql.Response{Data: json.RawMessage(`{"me":null}`)}
	exec := &fakeExecutor{response: resp}
	stream := &fakeStreamer{}
	r := NewRouter(exec, stream, nil)

	sub, err := r.Subscribe(context.Background(), graphql.Me())
	require.NoError(t, err)

	var events []Event
	for ev := range sub.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Same(t, resp, events[0].Response)
	assert.Empty(t, stream.ops)
}

func TestRouter_MutationSurvivesCancellation(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewRouter(exec, &fakeStreamer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Execute(ctx, graphql.AssignTaskMember("t", "u"))
	require.NoError(t, err)
	_, err = r.Execute(ctx, graphql.Me())
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, exec.ctxLive)
}
