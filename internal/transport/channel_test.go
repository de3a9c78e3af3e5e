package transport

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-client/internal/graphql"
)

func TestSubscription_DeliverNeverBlocks(t *testing.T) {
	sub := newSubscription("s1", graphql.TaskUpdated("p1"))
	for i := 0; i < maxPendingEvents; i++ {
		require.True(t, sub.deliver(Event{Response: &graphql.Response{Data: json.RawMessage(`{}`)}}))
	}

	assert.False(t, sub.deliver(Event{}), "one past the limit ends the subscription")
	assert.False(t, sub.deliver(Event{}))

	var last Event
	count := 0
	for ev := range sub.Events() {
		last = ev
		count++
	}
	assert.Equal(t, maxPendingEvents+1, count)
	assert.True(t, errors.Is(last.Err, ErrSlowConsumer))
}

func TestSubscription_FinishDrainsInOrder(t *testing.T) {
	sub := newSubscription("s1", graphql.TaskUpdated("p1"))
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, sub.deliver(Event{Response: &graphql.Response{Data: json.RawMessage(`"` + id + `"`)}}))
	}
	sub.finish(false)
	<-sub.Done()

	var got []string
	for ev := range sub.Events() {
		got = append(got, string(ev.Response.Data))
	}
	assert.Equal(t, []string{`"a"`, `"b"`, `"c"`}, got)
}

func TestSubscription_CloseDropsQueuedEvents(t *testing.T) {
	closed := 0
	sub := newSubscription("s1", graphql.TaskUpdated("p1"))
	sub.onClose = func() { closed++ }
	require.True(t, sub.deliver(Event{}))
	require.True(t, sub.deliver(Event{}))

	sub.Close()
	sub.Close()

	for range sub.Events() {
	}
	assert.Equal(t, 1, closed)
	assert.False(t, sub.deliver(Event{}))
}

func TestSubscription_TerminateReplacesQueue(t *testing.T) {
	sub := newSubscription("s1", graphql.TaskUpdated("p1"))
	require.True(t, sub.deliver(Event{Response: &graphql.Response{}}))
	reason := errors.New("signed out")

	sub.terminate(Event{Err: reason})

	var errs []error
	for ev := range sub.Events() {
		errs = append(errs, ev.Err)
	}
	require.NotEmpty(t, errs)
	assert.Equal(t, reason, errs[len(errs)-1])
}
