package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/spec-kit/collab-client/internal/graphql"
)

// ChannelKind names one of the two transports.
type ChannelKind string

const (
	ChannelHTTP   ChannelKind = "http"
	ChannelStream ChannelKind = "stream"
)

// TokenSource reads the current credential.
type TokenSource interface {
	Get(ctx context.Context) (string, bool)
}

// Exchange is one completed HTTP round-trip, handed to interceptors before the
// response reaches the caller.
type Exchange struct {
	Operation  *graphql.Operation
	StatusCode int
	Header     http.Header
	Response   *graphql.Response
	// Refreshed is set by an interceptor that stored a new credential after an
	// expiry signal on this exchange.
	Refreshed bool
}

// Expired reports whether the server rejected the credential.
func (e *Exchange) Expired() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Response.HasErrorCode(graphql.CodeUnauthenticated)
}

// Interceptor inspects every HTTP exchange.
type Interceptor interface {
	Intercept(ctx context.Context, ex *Exchange)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, ex *Exchange)

func (f InterceptorFunc) Intercept(ctx context.Context, ex *Exchange) {
	f(ctx, ex)
}

// Event is one payload pushed on a subscription. Err is set for execution
// errors and lost connections; the subscription ends after an error.
type Event struct {
	Response *graphql.Response
	Err      error
}

// maxPendingEvents bounds the events queued for one subscription whose
// consumer is not reading.
const maxPendingEvents = 256

// ErrSlowConsumer ends a subscription whose consumer let maxPendingEvents
// pile up.
var ErrSlowConsumer = errors.New("subscription consumer fell behind")

// Subscription is a live stream of events. Events is closed when the server
// completes the stream, the connection drops, or Close is called.
//
// Events are queued per subscription and handed on by its own goroutine, so a
// consumer that stops reading never holds up the shared connection.
type Subscription struct {
	ID        string
	Operation *graphql.Operation

	events chan Event
	done   chan struct{}
	abort  chan struct{}
	wake   chan struct{}

	mu      sync.Mutex
	pending []Event
	sending bool
	ended   bool

	once      sync.Once
	abortOnce sync.Once
	onClose   func()
}

func newSubscription(id string, op *graphql.Operation) *Subscription {
	s := &Subscription{
		ID:        id,
		Operation: op,
		events:    make(chan Event),
		done:      make(chan struct{}),
		abort:     make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
	go s.pump()
	return s
}

// Events yields pushed payloads until the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription ends. Events still queued at that
// point are delivered before Events is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription, drops queued events and tells the server to
// stop sending.
func (s *Subscription) Close() {
	s.abortOnce.Do(func() { close(s.abort) })
	s.finish(true)
}

func (s *Subscription) finish(notify bool) {
	s.once.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		close(s.done)
		s.signal()
		if notify && s.onClose != nil {
			s.onClose()
		}
	})
}

// deliver queues ev and returns at once. It reports false when the
// subscription no longer accepts events, including when this event
// overflowed the queue and ended the subscription with ErrSlowConsumer.
func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return false
	}
	queued := len(s.pending)
	if s.sending {
		queued++
	}
	if queued >= maxPendingEvents {
		s.pending = append(s.pending, Event{Err: fmt.Errorf("subscription %s: %w", s.ID, ErrSlowConsumer)})
		s.ended = true
		s.mu.Unlock()
		s.finish(false)
		return false
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	s.signal()
	return true
}

// terminate drops queued events and ends the subscription with ev as its
// last event.
func (s *Subscription) terminate(ev Event) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending[:0], ev)
	s.ended = true
	s.mu.Unlock()
	s.finish(false)
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump hands queued events to the consumer in order and closes Events once
// the subscription has ended and the queue is empty.
func (s *Subscription) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.wake:
			case <-s.abort:
				return
			}
			continue
		}
		ev := s.pending[0]
		s.pending[0] = Event{}
		s.pending = s.pending[1:]
		s.sending = true
		s.mu.Unlock()

		select {
		case s.events <- ev:
		case <-s.abort:
			return
		}
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}
}
