package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/events"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/repository"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// SessionDependencies encapsulates collaborators for the session service.
type SessionDependencies struct {
	Executor      Executor
	Authenticator Authenticator
	Store         repository.CredentialStore
	Dispatcher    events.Dispatcher
	Graph         *cache.Graph
	Logger        *zap.Logger
}

// SessionService owns the authentication lifecycle:
// Anonymous -> Authenticating -> Authenticated, and back to Anonymous on
// logout or when the credential is revoked.
type SessionService struct {
	exec       Executor
	auth       Authenticator
	store      repository.CredentialStore
	dispatcher events.Dispatcher
	graph      *cache.Graph
	logger     *zap.Logger

	mu          sync.RWMutex
	session     domain.Session
	unsubscribe func()
}

type registerInput struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// NewSessionService builds the service in the Anonymous state. It listens for
// credential revocations on the dispatcher.
func NewSessionService(deps SessionDependencies) *SessionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(logger)
	}
	authenticator := deps.Authenticator
	if authenticator == nil {
		authenticator = NewGraphQLAuthenticator(deps.Executor)
	}

	s := &SessionService{
		exec:       deps.Executor,
		auth:       authenticator,
		store:      deps.Store,
		dispatcher: dispatcher,
		graph:      deps.Graph,
		logger:     logger,
		session:    domain.Session{State: domain.SessionAnonymous},
	}
	s.unsubscribe = dispatcher.Subscribe(events.EventCredentialRevoked, func(ctx context.Context, _ events.Event) error {
		s.signOut(ctx, "credential revoked")
		return nil
	})
	return s
}

// Close stops listening for credential events.
func (s *SessionService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Current returns a snapshot of the session.
func (s *SessionService) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Subscribe calls fn after every session change until the returned function
// is called.
func (s *SessionService) Subscribe(fn func(domain.Session)) func() {
	return s.dispatcher.Subscribe(events.EventSessionChanged, func(_ context.Context, event events.Event) error {
		if payload, ok := event.Payload.(events.SessionChangedPayload); ok {
			fn(payload.Session)
		}
		return nil
	})
}

// Login authenticates and stores the returned credential. The pair is not
// checked locally; a rejection carries the server's reason as
// INVALID_CREDENTIALS and leaves the prior session in place.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	previous := s.begin(ctx)
	payload, err := s.auth.Login(ctx, email, password)
	if err == nil && payload.AccessToken == "" {
		err = apperrors.NewInvalidCredentials("login response carried no access token")
	}
	if err != nil {
		s.logger.Info("login failed", zap.String("email", email), zap.Error(err))
		s.transition(ctx, previous)
		return nil, err
	}
	return s.establish(ctx, payload, previous)
}

// Register creates an account and signs in with it.
func (s *SessionService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	if err := apperrors.ValidateStruct(registerInput{Name: name, Email: email, Password: password}); err != nil {
		return nil, err
	}

	previous := s.begin(ctx)
	payload, err := s.auth.Register(ctx, name, email, password)
	if err == nil && payload.AccessToken == "" {
		err = apperrors.NewInternalError(errors.New("register response carried no access token"))
	}
	if err != nil {
		s.logger.Info("registration failed", zap.String("email", email), zap.Error(err))
		s.transition(ctx, previous)
		return nil, err
	}
	return s.establish(ctx, payload, previous)
}

// RestoreSession resumes a stored credential by asking the server who it
// belongs to. A rejection, or a null identity, clears the credential and
// leaves the session Anonymous. When the server cannot be reached the session
// is Anonymous but the credential is kept for a later attempt. It never fails.
func (s *SessionService) RestoreSession(ctx context.Context) domain.Session {
	if _, ok := s.store.Get(ctx); !ok {
		s.transition(ctx, domain.Session{State: domain.SessionAnonymous})
		return s.Current()
	}

	s.begin(ctx)
	user, err := s.fetchMe(ctx)
	if err != nil && apperrors.TokenRefreshed(err) {
		user, err = s.fetchMe(ctx)
	}
	if apperrors.HasCode(err, apperrors.CodeNetworkUnavailable) {
		s.logger.Info("server unreachable; keeping stored credential", zap.Error(err))
		if s.graph != nil {
			s.graph.Reset()
		}
		s.transition(ctx, domain.Session{State: domain.SessionAnonymous})
		return s.Current()
	}
	if err != nil || user == nil {
		if err != nil {
			s.logger.Info("stored credential rejected", zap.Error(err))
		} else {
			s.logger.Info("stored credential has no identity")
		}
		s.signOut(ctx, "restore failed")
		return s.Current()
	}

	s.authenticated(ctx, user)
	return s.Current()
}

// Logout tells the server, best effort, then clears the credential, the
// cache and the session whatever the server said.
func (s *SessionService) Logout(ctx context.Context) error {
	if _, err := s.exec.Execute(ctx, graphql.Logout()); err != nil {
		s.logger.Warn("logout mutation failed; clearing local session anyway", zap.Error(err))
	}
	return s.signOut(ctx, "logout")
}

func (s *SessionService) establish(ctx context.Context, payload *domain.AuthPayload, previous domain.Session) (*domain.User, error) {
	storeCtx := context.WithoutCancel(ctx)
	if err := s.store.Set(storeCtx, payload.AccessToken); err != nil {
		s.transition(ctx, previous)
		return nil, apperrors.NewInternalError(err)
	}
	_ = s.dispatcher.Publish(storeCtx, events.New(events.EventCredentialRotated, events.CredentialRotatedPayload{
		Source: events.SourceLogin,
	}))

	user := payload.User
	if user == nil {
		var err error
		user, err = s.fetchMe(ctx)
		if err == nil && user == nil {
			err = apperrors.NewInvalidCredentials("server returned no identity")
		}
		if err != nil {
			_ = s.signOut(ctx, "identity unavailable")
			return nil, err
		}
	}

	s.authenticated(ctx, user)
	return user, nil
}

func (s *SessionService) fetchMe(ctx context.Context) (*domain.User, error) {
	resp, err := s.exec.Execute(ctx, graphql.Me())
	if err != nil {
		return nil, err
	}
	var user domain.User
	found, err := resp.Decode(graphql.FieldMe, &user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

func (s *SessionService) authenticated(ctx context.Context, user *domain.User) {
	if s.graph != nil {
		if err := s.graph.WriteRoot(graphql.FieldMe, user); err != nil {
			s.logger.Warn("cache identity", zap.Error(err))
		}
	}
	s.transition(ctx, domain.Session{State: domain.SessionAuthenticated, User: user})
}

// signOut is idempotent. The session becomes Anonymous even if the store
// cannot be cleared.
func (s *SessionService) signOut(ctx context.Context, reason string) error {
	err := s.store.Clear(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Error("clear credential", zap.String("reason", reason), zap.Error(err))
		err = apperrors.NewInternalError(err)
	}
	_ = s.dispatcher.Publish(context.WithoutCancel(ctx), events.New(events.EventCredentialCleared, events.CredentialClearedPayload{
		Reason: reason,
	}))
	if s.graph != nil {
		s.graph.Reset()
	}
	s.transition(ctx, domain.Session{State: domain.SessionAnonymous})
	s.logger.Debug("signed out", zap.String("reason", reason))
	return err
}

// begin enters Authenticating and returns the session held before.
func (s *SessionService) begin(ctx context.Context) domain.Session {
	s.mu.Lock()
	previous := s.session
	s.session = domain.Session{State: domain.SessionAuthenticating, User: previous.User, Loading: true}
	next := s.session
	s.mu.Unlock()

	s.publish(ctx, next)
	return previous
}

func (s *SessionService) transition(ctx context.Context, next domain.Session) {
	s.mu.Lock()
	changed := s.session != next
	s.session = next
	s.mu.Unlock()

	if changed {
		s.publish(ctx, next)
	}
}

func (s *SessionService) publish(ctx context.Context, session domain.Session) {
	_ = s.dispatcher.Publish(context.WithoutCancel(ctx), events.New(events.EventSessionChanged, events.SessionChangedPayload{
		Session: session,
	}))
}
