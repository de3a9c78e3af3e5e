package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/transport"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

type streamFrame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type streamSubscriber struct {
	id   string
	send func(streamFrame) error
}

// taskStream is a websocket endpoint that acknowledges every connection and
// lets the test push taskUpdated payloads to whatever is subscribed.
type taskStream struct {
	*httptest.Server
	mu          sync.Mutex
	authHeaders []string
	subscribers []streamSubscriber
}

func newTaskStream(t *testing.T) *taskStream {
	t.Helper()
	ts := &taskStream{}
	upgrader := websocket.Upgrader{Subprotocols: []string{transport.Subprotocol}}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var init streamFrame
		if err := conn.ReadJSON(&init); err != nil || init.Type != "connection_init" {
			return
		}
		var writeMu sync.Mutex
		send := func(f streamFrame) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteJSON(f)
		}
		ts.mu.Lock()
		ts.authHeaders = append(ts.authHeaders, r.Header.Get("Authorization"))
		ts.mu.Unlock()
		_ = send(streamFrame{Type: "connection_ack"})

		for {
			var f streamFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Type {
			case "subscribe":
				ts.mu.Lock()
				ts.subscribers = append(ts.subscribers, streamSubscriber{id: f.ID, send: send})
				ts.mu.Unlock()
			case "ping":
				_ = send(streamFrame{Type: "pong"})
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *taskStream) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *taskStream) subscriberCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.subscribers)
}

func (ts *taskStream) connections() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.authHeaders...)
}

// push sends a taskUpdated event to every subscriber and reports how many
// writes went through.
func (ts *taskStream) push(taskID string) int {
	ts.mu.Lock()
	subs := append([]streamSubscriber(nil), ts.subscribers...)
	ts.mu.Unlock()

	payload := json.RawMessage(`{"data":{"taskUpdated":{"id":"` + taskID + `","title":"pushed"}}}`)
	sent := 0
	for _, sub := range subs {
		if sub.send(streamFrame{ID: sub.id, Type: "next", Payload: payload}) == nil {
			sent++
		}
	}
	return sent
}

func TestClient_LogoutEndsStream(t *testing.T) {
	_, base := startServer(t, 0)
	stream := newTaskStream(t)
	cfg := clientConfig(base)
	cfg.Endpoints.GraphQLWSURL = stream.wsURL()
	cfg.Transport.StreamReconnectOnRotation = false
	c := newClient(t, cfg)
	ctx := context.Background()

	_, err := c.Session.Register(ctx, "Ada", "ada@example.com", "secret1")
	require.NoError(t, err)

	events := make(chan transport.Event, 16)
	require.NoError(t, c.Watch(ctx, graphql.TaskUpdated("p1"), func(ev transport.Event) { events <- ev }))
	require.Eventually(t, func() bool { return stream.subscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, stream.push("7"))
	select {
	case ev := <-events:
		require.NoError(t, ev.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("push before logout never arrived")
	}
	assert.True(t, c.Graph().Has(cache.EntityKey{Type: "Task", ID: "7"}))

	require.NoError(t, c.Session.Logout(ctx))

	select {
	case ev := <-events:
		require.Error(t, ev.Err)
		assert.True(t, apperrors.HasCode(ev.Err, apperrors.CodeUnauthorized), "got %v", ev.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription outlived logout")
	}

	stream.push("42")
	time.Sleep(100 * time.Millisecond)
	assert.False(t, c.Graph().Has(cache.EntityKey{Type: "Task", ID: "42"}), "previous user's push reached the cache")
	assert.False(t, c.Graph().Has(cache.EntityKey{Type: "Task", ID: "7"}))

	conns := stream.connections()
	require.Len(t, conns, 1, "no connection is re-opened with the old credential")
	assert.True(t, strings.HasPrefix(conns[0], "Bearer "))
}
