package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/observability"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// Subprotocol is the websocket subprotocol spoken by the stream channel.
const Subprotocol = "graphql-transport-ws"

const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

const (
	writeWait         = 10 * time.Second
	ackTimeout        = 10 * time.Second
	defaultPingPeriod = 30 * time.Second
	maxMessageSize    = 1 << 20
)

var errStreamClosed = errors.New("stream channel closed")

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StreamOptions configures a StreamChannel.
type StreamOptions struct {
	URL        string
	Dialer     *websocket.Dialer
	PingPeriod time.Duration
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// StreamChannel multiplexes subscriptions over one websocket. The connection
// is opened lazily by the first Subscribe, and the credential is read only at
// that moment.
type StreamChannel struct {
	url        string
	dialer     *websocket.Dialer
	store      TokenSource
	pingPeriod time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger

	mu     sync.Mutex
	conn   *streamConn
	subs   map[string]*Subscription
	closed bool
}

type streamConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *streamConn) write(msg wsMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *streamConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

// NewStreamChannel builds the subscription channel.
func NewStreamChannel(opts StreamOptions, store TokenSource) (*StreamChannel, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("graphql websocket url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	dialer.Subprotocols = []string{Subprotocol}
	pingPeriod := opts.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}

	return &StreamChannel{
		url:        opts.URL,
		dialer:     dialer,
		store:      store,
		pingPeriod: pingPeriod,
		metrics:    opts.Metrics,
		logger:     logger,
		subs:       make(map[string]*Subscription),
	}, nil
}

// Subscribe registers op on the shared connection, dialing it if needed.
// Cancelling ctx ends the subscription.
func (s *StreamChannel) Subscribe(ctx context.Context, op *graphql.Operation) (*Subscription, error) {
	sub, err := s.subscribe(ctx, op)
	s.metrics.RecordOperation(string(ChannelStream), string(op.Kind()), err)
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

func (s *StreamChannel) subscribe(ctx context.Context, op *graphql.Operation) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStreamClosed
	}
	if s.conn == nil {
		conn, err := s.dial(ctx)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}

	sub := newSubscription(uuid.NewString(), op)
	sub.onClose = func() { s.unsubscribe(sub.ID) }

	msg, err := subscribeMessage(sub)
	if err == nil {
		err = s.conn.write(msg)
		if err != nil {
			err = apperrors.NewNetworkUnavailable(err)
		}
	}
	if err != nil {
		sub.finish(false)
		return nil, err
	}
	s.subs[sub.ID] = sub
	s.logger.Debug("subscription started", zap.String("id", sub.ID), zap.String("operation", op.Name))
	return sub, nil
}

// Reconnect drops the current connection and, when subscriptions are active,
// dials again with the current credential and re-registers them.
func (s *StreamChannel) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errStreamClosed
	}
	old := s.conn
	s.conn = nil
	if old != nil {
		old.close()
	}
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return nil
	}

	conn, err := s.dial(ctx)
	if err != nil {
		lost := s.detachLocked()
		s.mu.Unlock()
		failAll(lost, err)
		return err
	}
	s.conn = conn
	for _, sub := range s.subs {
		msg, err := subscribeMessage(sub)
		if err == nil {
			err = conn.write(msg)
		}
		if err != nil {
			s.logger.Warn("resubscribe failed", zap.String("id", sub.ID), zap.Error(err))
		}
	}
	count := len(s.subs)
	s.mu.Unlock()

	s.logger.Info("stream channel reconnected", zap.Int("subscriptions", count))
	return nil
}

// Disconnect closes the connection and ends every subscription with reason,
// discarding events not yet handed to consumers. The channel stays usable;
// the next Subscribe dials again with whatever credential is then stored.
func (s *StreamChannel) Disconnect(reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	subs := s.detachLocked()
	s.mu.Unlock()

	if conn != nil {
		conn.close()
	}
	for _, sub := range subs {
		sub.terminate(Event{Err: reason})
	}
	s.logger.Info("stream channel disconnected", zap.Int("subscriptions", len(subs)), zap.Error(reason))
}

// Close ends every subscription and the connection.
func (s *StreamChannel) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	subs := s.detachLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.finish(false)
	}
	if conn != nil {
		conn.close()
	}
	return nil
}

func (s *StreamChannel) dial(ctx context.Context) (*streamConn, error) {
	header := http.Header{}
	init := wsMessage{Type: msgConnectionInit}
	if value, ok := AuthorizationValue(ctx, s.store); ok {
		header.Set(headerAuthorization, value)
		payload, err := json.Marshal(map[string]string{"authorization": value})
		if err != nil {
			return nil, err
		}
		init.Payload = payload
	}

	ws, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return nil, apperrors.NewNetworkUnavailable(err)
	}
	ws.SetReadLimit(maxMessageSize)
	conn := &streamConn{ws: ws, closed: make(chan struct{})}

	if err := conn.write(init); err != nil {
		conn.close()
		return nil, apperrors.NewNetworkUnavailable(err)
	}
	if err := awaitAck(conn); err != nil {
		conn.close()
		return nil, apperrors.NewNetworkUnavailable(err)
	}

	go s.readLoop(conn)
	go s.keepAlive(conn)
	s.logger.Debug("stream channel connected", zap.String("url", s.url))
	return conn, nil
}

func awaitAck(conn *streamConn) error {
	_ = conn.ws.SetReadDeadline(time.Now().Add(ackTimeout))
	defer conn.ws.SetReadDeadline(time.Time{}) //nolint:errcheck
	for {
		var msg wsMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await connection_ack: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgPing:
			if err := conn.write(wsMessage{Type: msgPong}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected %q before connection_ack", msg.Type)
		}
	}
}

func (s *StreamChannel) readLoop(conn *streamConn) {
	for {
		var msg wsMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			s.connectionLost(conn, err)
			return
		}

		switch msg.Type {
		case msgNext:
			resp := &graphql.Response{}
			if err := json.Unmarshal(msg.Payload, resp); err != nil {
				s.logger.Warn("undecodable next payload", zap.String("id", msg.ID), zap.Error(err))
				continue
			}
			if sub := s.lookup(msg.ID); sub != nil && !sub.deliver(Event{Response: resp}) {
				s.logger.Warn("subscription stopped accepting events", zap.String("id", sub.ID))
				s.unsubscribe(sub.ID)
			}
		case msgError:
			var errs []graphql.Error
			if err := json.Unmarshal(msg.Payload, &errs); err != nil {
				errs = []graphql.Error{{Message: string(msg.Payload)}}
			}
			if sub := s.remove(msg.ID); sub != nil {
				sub.deliver(Event{Err: &graphql.ResponseError{Errors: errs}})
				sub.finish(false)
			}
		case msgComplete:
			if sub := s.remove(msg.ID); sub != nil {
				sub.finish(false)
			}
		case msgPing:
			_ = conn.write(wsMessage{Type: msgPong})
		case msgPong:
		default:
			s.logger.Debug("ignoring stream message", zap.String("type", msg.Type))
		}
	}
}

func (s *StreamChannel) keepAlive(conn *streamConn) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-conn.closed:
			return
		case <-ticker.C:
			if err := conn.write(wsMessage{Type: msgPing}); err != nil {
				return
			}
		}
	}
}

// connectionLost ends every subscription bound to conn unless conn was
// already replaced by Reconnect or Close.
func (s *StreamChannel) connectionLost(conn *streamConn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		conn.close()
		return
	}
	s.conn = nil
	lost := s.detachLocked()
	s.mu.Unlock()

	conn.close()
	if len(lost) > 0 {
		s.logger.Warn("stream connection lost", zap.Int("subscriptions", len(lost)), zap.Error(err))
	}
	failAll(lost, err)
}

func (s *StreamChannel) detachLocked() []*Subscription {
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[string]*Subscription)
	return subs
}

func (s *StreamChannel) lookup(id string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

func (s *StreamChannel) remove(id string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[id]
	delete(s.subs, id)
	return sub
}

func (s *StreamChannel) unsubscribe(id string) {
	s.mu.Lock()
	_, active := s.subs[id]
	delete(s.subs, id)
	conn := s.conn
	s.mu.Unlock()

	if active && conn != nil {
		if err := conn.write(wsMessage{ID: id, Type: msgComplete}); err != nil {
			s.logger.Debug("send complete", zap.String("id", id), zap.Error(err))
		}
	}
}

func failAll(subs []*Subscription, err error) {
	for _, sub := range subs {
		sub.deliver(Event{Err: apperrors.NewNetworkUnavailable(err)})
		sub.finish(false)
	}
}

func subscribeMessage(sub *Subscription) (wsMessage, error) {
	payload, err := json.Marshal(sub.Operation.Request())
	if err != nil {
		return wsMessage{}, fmt.Errorf("encode %s: %w", sub.Operation.Name, err)
	}
	return wsMessage{ID: sub.ID, Type: msgSubscribe, Payload: payload}, nil
}
