// Package devserver is an in-memory backend speaking the collaboration API's
// HTTP contract, for integration tests and local CLI work.
package devserver

import (
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/config"
)

// Server bundles the fiber app with its in-memory state.
type Server struct {
	app      *fiber.App
	store    *Store
	tokens   *TokenManager
	accounts *AccountService
	logger   *zap.Logger
}

// New builds the app and registers every route.
func New(cfg config.DevServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	refreshTTL := time.Duration(cfg.RefreshTokenTTLMinutes) * time.Minute
	rotateWithin := time.Duration(cfg.RotateWithinSeconds) * time.Second

	store := NewStore()
	tokens := NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL())
	accounts := NewAccountService(store, tokens, cfg.BcryptCost, refreshTTL)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	registerMiddlewares(app, logger)

	s := &Server{app: app, store: store, tokens: tokens, accounts: accounts, logger: logger}
	registerRoutes(app, routeConfig{
		Auth:    NewAuthHandler(accounts, refreshTTL),
		GraphQL: NewGraphQLHandler(store, accounts, tokens, refreshTTL, rotateWithin, logger),
		Server:  s,
	})
	return s
}

type routeConfig struct {
	Auth    *AuthHandler
	GraphQL *GraphQLHandler
	Server  *Server
}

func registerRoutes(app *fiber.App, cfg routeConfig) {
	app.Get("/health/live", cfg.Server.live)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)

	app.Post("/graphql", cfg.GraphQL.Handle)

	app.Post("/dev/expire-tokens", cfg.Server.expireTokens)
}

// App exposes the fiber app, e.g. for app.Test in handler tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Store exposes the in-memory state for seeding.
func (s *Server) Store() *Store {
	return s.store
}

// ExpireTokens makes every access token issued so far fail as expired while
// refresh cookies stay valid.
func (s *Server) ExpireTokens() int {
	n := s.tokens.ExpireAll()
	s.logger.Info("access tokens expired", zap.Int("count", n))
	return n
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

func (s *Server) expireTokens(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"expired": s.ExpireTokens()})
}
