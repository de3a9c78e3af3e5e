package auth

import (
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Claims describes the access token payload issued by the API.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenInfo is the metadata a client may read from its own credential.
type TokenInfo struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the token's exp claim is in the past. A token
// without exp never expires client-side.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Inspect decodes claims without verifying the signature. It is for logging
// and display only; the server remains the sole judge of validity.
func Inspect(token string) (*TokenInfo, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("inspect token: %w", err)
	}
	info := &TokenInfo{Subject: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
