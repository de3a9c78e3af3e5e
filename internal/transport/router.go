package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/graphql"
)

// Executor runs request/response operations.
type Executor interface {
	Execute(ctx context.Context, op *graphql.Operation) (*graphql.Response, error)
}

// Streamer opens subscriptions.
type Streamer interface {
	Subscribe(ctx context.Context, op *graphql.Operation) (*Subscription, error)
}

// Router sends each operation over the channel its kind calls for.
type Router struct {
	http   Executor
	stream Streamer
	logger *zap.Logger
}

// NewRouter wires both channels.
func NewRouter(http Executor, stream Streamer, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{http: http, stream: stream, logger: logger}
}

// Route picks the channel from the operation document alone.
func (r *Router) Route(op *graphql.Operation) ChannelKind {
	if op.Kind() == graphql.KindSubscription {
		return ChannelStream
	}
	return ChannelHTTP
}

// Execute returns one response. A subscription is sent over the stream
// channel and its first payload returned. Mutations are detached from ctx
// cancellation so the caller leaving does not abort them.
func (r *Router) Execute(ctx context.Context, op *graphql.Operation) (*graphql.Response, error) {
	if r.Route(op) == ChannelStream {
		return r.firstPayload(ctx, op)
	}
	if op.Kind() == graphql.KindMutation {
		ctx = context.WithoutCancel(ctx)
	}
	return r.http.Execute(ctx, op)
}

// Subscribe returns a stream of events. A query or mutation is sent over HTTP
// and yields a single event.
func (r *Router) Subscribe(ctx context.Context, op *graphql.Operation) (*Subscription, error) {
	if r.Route(op) == ChannelStream {
		return r.stream.Subscribe(ctx, op)
	}

	resp, err := r.Execute(ctx, op)
	sub := newSubscription(uuid.NewString(), op)
	sub.deliver(Event{Response: resp, Err: err})
	sub.finish(false)
	return sub, nil
}

func (r *Router) firstPayload(ctx context.Context, op *graphql.Operation) (*graphql.Response, error) {
	sub, err := r.stream.Subscribe(ctx, op)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	select {
	case ev, ok := <-sub.Events():
		if !ok {
			return nil, errors.New("subscription completed without a payload")
		}
		if ev.Err != nil {
			return ev.Response, ev.Err
		}
		return ev.Response, ev.Response.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
