package devserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/collab-client/internal/domain"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// session is what login, register and refresh hand back to the handlers.
type session struct {
	User         domain.User
	AccessToken  string
	ExpiresAt    time.Time
	RefreshToken string
}

// AccountService coordinates registration, login and refresh flows.
type AccountService struct {
	store      *Store
	tokens     *TokenManager
	bcryptCost int
	refreshTTL time.Duration
}

// NewAccountService builds the service.
func NewAccountService(store *Store, tokens *TokenManager, bcryptCost int, refreshTTL time.Duration) *AccountService {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AccountService{store: store, tokens: tokens, bcryptCost: bcryptCost, refreshTTL: refreshTTL}
}

// Register creates an account and signs it in.
func (s *AccountService) Register(name, email, password string) (*session, error) {
	if err := apperrors.ValidateStruct(registerRequest{Name: name, Email: email, Password: password}); err != nil {
		return nil, err
	}
	hash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user, err := s.store.CreateAccount(name, email, hash)
	if err != nil {
		return nil, err
	}
	return s.start(*user)
}

// Login authenticates an existing account.
func (s *AccountService) Login(email, password string) (*session, error) {
	acc, ok := s.store.accountByEmail(email)
	if !ok || comparePassword(acc.passwordHash, password) != nil {
		return nil, apperrors.NewInvalidCredentials("invalid email or password")
	}
	return s.start(acc.user)
}

// Refresh issues a new access token for a valid refresh token.
func (s *AccountService) Refresh(refreshToken string) (*session, error) {
	if refreshToken == "" {
		return nil, apperrors.NewUnauthorized("missing refresh token")
	}
	userID, ok := s.store.refreshOwner(refreshToken)
	if !ok {
		return nil, apperrors.NewUnauthorized("refresh token invalid or expired")
	}
	user, ok := s.store.User(userID)
	if !ok {
		s.store.dropRefresh(refreshToken)
		return nil, apperrors.NewUnauthorized("account no longer exists")
	}
	token, exp, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &session{User: *user, AccessToken: token, ExpiresAt: exp, RefreshToken: refreshToken}, nil
}

// Logout forgets the refresh token; access tokens expire on their own.
func (s *AccountService) Logout(refreshToken string) {
	if refreshToken != "" {
		s.store.dropRefresh(refreshToken)
	}
}

func (s *AccountService) start(user domain.User) (*session, error) {
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refresh := uuid.NewString()
	s.store.saveRefresh(refresh, user.ID, s.refreshTTL)
	return &session{User: user, AccessToken: token, ExpiresAt: exp, RefreshToken: refresh}, nil
}

func (s *session) response() authResponse {
	return authResponse{AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt, User: newUserView(s.User)}
}
