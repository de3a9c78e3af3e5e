package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/transport"
)

// Subscriber opens subscriptions. transport.Router satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, op *graphql.Operation) (*transport.Subscription, error)
}

// SubscriptionWorker drains subscriptions, applying every push to the cache
// before handing it on.
type SubscriptionWorker struct {
	subscriber Subscriber
	updater    *cache.Updater
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewSubscriptionWorker builds a worker. updater may be nil.
func NewSubscriptionWorker(subscriber Subscriber, updater *cache.Updater, logger *zap.Logger) *SubscriptionWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionWorker{subscriber: subscriber, updater: updater, logger: logger}
}

// Watch subscribes to op and calls handler for every event until ctx is
// cancelled or the server completes the subscription. handler may be nil.
func (w *SubscriptionWorker) Watch(ctx context.Context, op *graphql.Operation, handler func(transport.Event)) error {
	sub, err := w.subscriber.Subscribe(ctx, op)
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer sub.Close()
		for ev := range sub.Events() {
			if ev.Err == nil && w.updater != nil {
				_ = w.updater.Apply(op, ev.Response)
			}
			if ev.Err != nil {
				w.logger.Warn("subscription event failed", zap.String("operation", op.Name), zap.Error(ev.Err))
			}
			if handler != nil {
				handler(ev)
			}
		}
		w.logger.Debug("subscription ended", zap.String("operation", op.Name), zap.String("id", sub.ID))
	}()
	return nil
}

// Wait blocks until every watched subscription has ended.
func (w *SubscriptionWorker) Wait() {
	w.wg.Wait()
}
