// Package collab assembles the client core: credential store, channels,
// refresh handling, entity cache and the domain services on top of them.
package collab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/auth"
	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/config"
	"github.com/spec-kit/collab-client/internal/events"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/observability"
	"github.com/spec-kit/collab-client/internal/persistence"
	"github.com/spec-kit/collab-client/internal/repository"
	"github.com/spec-kit/collab-client/internal/service"
	"github.com/spec-kit/collab-client/internal/transport"
	"github.com/spec-kit/collab-client/internal/worker"
)

// Client is one signed-in (or anonymous) view of the collaboration API.
type Client struct {
	Session    *service.SessionService
	Workspaces *service.WorkspaceService
	Projects   *service.ProjectService
	Tasks      *service.TaskService

	stream         *transport.StreamChannel
	graph          *cache.Graph
	metrics        *observability.Metrics
	dispatcher     events.Dispatcher
	credentials    repository.CredentialStore
	subscriptions  *worker.SubscriptionWorker
	stopReconnect  func()
	stopDisconnect func()
	closeStore     func()
	logger         *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option adjusts how New builds a client.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	credentials repository.CredentialStore
	httpClient  *http.Client
}

// WithLogger sets the logger; the default discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCredentialStore bypasses the configured backend.
func WithCredentialStore(store repository.CredentialStore) Option {
	return func(o *options) { o.credentials = store }
}

// WithHTTPClient replaces the HTTP client. It must carry a cookie jar for
// refresh to work.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New wires a client from cfg. The session starts Anonymous; call
// Session.RestoreSession to pick up a persisted credential.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	credentials := o.credentials
	closeStore := func() {}
	if credentials == nil {
		var err error
		credentials, closeStore, err = OpenCredentialStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	httpClient := o.httpClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: cfg.Transport.RequestTimeout()}
	}

	metrics := observability.NewMetrics(cfg.Transport.MetricsNamespace)
	dispatcher := events.NewInMemoryDispatcher(logger)

	httpChannel, err := transport.NewHTTPChannel(transport.HTTPOptions{
		URL:               cfg.Endpoints.GraphQLHTTPURL,
		Timeout:           cfg.Transport.RequestTimeout(),
		Client:            httpClient,
		Breaker:           cfg.Breaker,
		RetryAfterRefresh: cfg.Transport.RetryAfterRefresh,
		Metrics:           metrics,
		Logger:            logger.Named("http"),
	}, credentials)
	if err != nil {
		closeStore()
		return nil, err
	}
	httpChannel.Use(auth.NewRefreshInterceptor(
		credentials,
		auth.NewHTTPRefresher(cfg.Endpoints.RefreshURL(), httpChannel.Client()),
		dispatcher,
		auth.InterceptorOptions{
			TokenHeader: cfg.Transport.TokenHeader,
			Metrics:     metrics,
			Logger:      logger.Named("refresh"),
		},
	))

	stream, err := transport.NewStreamChannel(transport.StreamOptions{
		URL:     cfg.Endpoints.GraphQLWSURL,
		Metrics: metrics,
		Logger:  logger.Named("stream"),
	}, credentials)
	if err != nil {
		closeStore()
		return nil, err
	}

	router := transport.NewRouter(httpChannel, stream, logger)
	graph := cache.NewGraph(nil)
	updater := cache.NewUpdater(graph, metrics, logger.Named("cache"))

	var authenticator service.Authenticator
	if cfg.Transport.AuthTransport == config.AuthTransportREST {
		authenticator = service.NewRESTAuthenticator(cfg.Endpoints.AuthBaseURL, httpChannel.Client())
	}

	c := &Client{
		Session: service.NewSessionService(service.SessionDependencies{
			Executor:      router,
			Authenticator: authenticator,
			Store:         credentials,
			Dispatcher:    dispatcher,
			Graph:         graph,
			Logger:        logger.Named("session"),
		}),
		Workspaces:    service.NewWorkspaceService(router, updater, logger),
		Projects:      service.NewProjectService(router, updater, logger),
		Tasks:         service.NewTaskService(router, updater, logger),
		stream:        stream,
		graph:         graph,
		metrics:       metrics,
		dispatcher:    dispatcher,
		credentials:   credentials,
		subscriptions: worker.NewSubscriptionWorker(router, updater, logger.Named("subscriptions")),
		stopReconnect: func() {},
		closeStore:    closeStore,
		logger:        logger,
	}
	c.stopDisconnect = worker.DisconnectOnCredentialCleared(dispatcher, stream, logger.Named("stream"))
	if cfg.Transport.StreamReconnectOnRotation {
		c.stopReconnect = worker.StartReconnectWorker(dispatcher, stream, logger.Named("reconnect"))
	}
	return c, nil
}

// OpenCredentialStore opens the backend named in cfg. The returned func
// releases its connection.
func OpenCredentialStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.CredentialStore, func(), error) {
	slot := cfg.Credential.Slot
	switch cfg.Credential.Backend {
	case config.BackendMemory:
		return repository.NewMemoryCredentialStore(), func() {}, nil
	case config.BackendBolt:
		db, err := persistence.NewBolt(cfg.Credential.BoltPath, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewBoltCredentialStore(db.DB, slot, logger)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	case config.BackendRedis:
		rdb := persistence.NewRedis(cfg.Redis, logger)
		return repository.NewRedisCredentialStore(rdb.Client, slot, logger), rdb.Close, nil
	case config.BackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return repository.NewPostgresCredentialStore(pg.PoolHandle(), slot, logger), pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential backend %q", cfg.Credential.Backend)
	}
}

// Watch subscribes to op over the streaming channel. Every push updates the
// cache before handler sees it.
func (c *Client) Watch(ctx context.Context, op *graphql.Operation, handler func(transport.Event)) error {
	return c.subscriptions.Watch(ctx, op, handler)
}

// Graph is the normalized entity cache shared by all services.
func (c *Client) Graph() *cache.Graph {
	return c.graph
}

// Metrics returns the client's collectors.
func (c *Client) Metrics() *observability.Metrics {
	return c.metrics
}

// Events returns the dispatcher carrying session and credential events.
func (c *Client) Events() events.Dispatcher {
	return c.dispatcher
}

// Credentials returns the credential store in use.
func (c *Client) Credentials() repository.CredentialStore {
	return c.credentials
}

// Close ends subscriptions and releases the credential store. The stored
// credential itself is kept.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.stopReconnect()
		c.stopDisconnect()
		c.Session.Close()
		c.closeErr = c.stream.Close()
		c.subscriptions.Wait()
		c.closeStore()
		c.logger.Debug("client closed")
	})
	return c.closeErr
}
