package devserver

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RefreshCookie names the HttpOnly cookie carrying the refresh token.
const RefreshCookie = "refresh_token"

// AuthHandler exposes the REST auth endpoints.
type AuthHandler struct {
	accounts   *AccountService
	refreshTTL time.Duration
}

// NewAuthHandler constructs handler.
func NewAuthHandler(accounts *AccountService, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{accounts: accounts, refreshTTL: refreshTTL}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	s, err := h.accounts.Register(req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	setRefreshCookie(c, s.RefreshToken, h.refreshTTL)
	return c.Status(http.StatusCreated).JSON(s.response())
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	s, err := h.accounts.Login(req.Email, req.Password)
	if err != nil {
		return err
	}
	setRefreshCookie(c, s.RefreshToken, h.refreshTTL)
	return c.JSON(s.response())
}

// Refresh handles POST /auth/refresh. Only the cookie is consulted; a bearer
// token on the request is ignored.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	s, err := h.accounts.Refresh(c.Cookies(RefreshCookie))
	if err != nil {
		return err
	}
	return c.JSON(refreshResponse{AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.accounts.Logout(c.Cookies(RefreshCookie))
	clearRefreshCookie(c)
	return c.SendStatus(http.StatusNoContent)
}

func setRefreshCookie(c *fiber.Ctx, token string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookie,
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
