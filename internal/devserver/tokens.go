package devserver

import (
	"errors"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/collab-client/internal/auth"
	"github.com/spec-kit/collab-client/internal/domain"
)

var errTokenExpired = errors.New("token expired")

// TokenManager issues and validates HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	issued  map[string]struct{}
	expired map[string]struct{}
}

// NewTokenManager builds a manager; a non-positive ttl means 15 minutes.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenManager{
		secret:  []byte(secret),
		ttl:     ttl,
		issued:  make(map[string]struct{}),
		expired: make(map[string]struct{}),
	}
}

// Issue signs an access token for user.
func (tm *TokenManager) Issue(user domain.User) (string, time.Time, error) {
	return tm.issue(user, tm.ttl)
}

func (tm *TokenManager) issue(user domain.User, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &auth.Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	tm.mu.Lock()
	tm.issued[claims.ID] = struct{}{}
	tm.mu.Unlock()
	return signed, expiresAt, nil
}

// Parse validates tokenStr and returns its claims. Expired tokens, including
// those expired through ExpireAll, report errTokenExpired.
func (tm *TokenManager) Parse(tokenStr string) (*auth.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &auth.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, err
	}

	claims, ok := parsed.Claims.(*auth.Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}

	tm.mu.Lock()
	_, revoked := tm.expired[claims.ID]
	tm.mu.Unlock()
	if revoked {
		return nil, errTokenExpired
	}
	return claims, nil
}

// ExpireAll makes every token issued so far fail as expired.
func (tm *TokenManager) ExpireAll() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	n := len(tm.issued)
	for id := range tm.issued {
		tm.expired[id] = struct{}{}
	}
	tm.issued = make(map[string]struct{})
	return n
}
