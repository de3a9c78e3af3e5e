package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/events"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// Reconnector re-establishes a long-lived connection with the current
// credential. transport.StreamChannel satisfies it.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Disconnector drops a long-lived connection and ends what runs on it.
// transport.StreamChannel satisfies it.
type Disconnector interface {
	Disconnect(reason error)
}

// DisconnectOnCredentialCleared ends every stream subscription as soon as the
// stored credential is removed, so pushes meant for the previous user never
// reach the cache. It runs inside the publisher's call. The returned func
// unregisters the handler.
func DisconnectOnCredentialCleared(dispatcher events.Dispatcher, stream Disconnector, logger *zap.Logger) func() {
	if dispatcher == nil || stream == nil {
		return func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return dispatcher.Subscribe(events.EventCredentialCleared, func(_ context.Context, event events.Event) error {
		reason := "signed out"
		if payload, ok := event.Payload.(events.CredentialClearedPayload); ok && payload.Reason != "" {
			reason = payload.Reason
		}
		stream.Disconnect(apperrors.NewUnauthorized(reason))
		logger.Debug("stream disconnected after credential cleared", zap.String("reason", reason))
		return nil
	})
}

// StartReconnectWorker reconnects stream whenever the credential rotates.
// Rotations arriving while a reconnect is running collapse into one more
// reconnect. The returned func unregisters the handler and waits for the
// worker to exit.
func StartReconnectWorker(dispatcher events.Dispatcher, stream Reconnector, logger *zap.Logger) func() {
	if dispatcher == nil || stream == nil {
		return func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pending := make(chan string, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup

	unsubscribe := dispatcher.Subscribe(events.EventCredentialRotated, func(_ context.Context, event events.Event) error {
		source := ""
		if payload, ok := event.Payload.(events.CredentialRotatedPayload); ok {
			source = payload.Source
		}
		select {
		case pending <- source:
		default:
		}
		return nil
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case source := <-pending:
				if err := stream.Reconnect(context.Background()); err != nil {
					logger.Warn("stream reconnect after rotation failed", zap.String("source", source), zap.Error(err))
					continue
				}
				logger.Debug("stream reconnected after rotation", zap.String("source", source))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(done)
			wg.Wait()
		})
	}
}
