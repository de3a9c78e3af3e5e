package domain

// SessionState tracks the authentication lifecycle.
type SessionState string

const (
	SessionAnonymous      SessionState = "ANONYMOUS"
	SessionAuthenticating SessionState = "AUTHENTICATING"
	SessionAuthenticated  SessionState = "AUTHENTICATED"
)

// Session is the read-only projection of the current user handed to consumers.
type Session struct {
	State   SessionState
	User    *User
	Loading bool
}

// Authenticated reports whether a user is signed in.
func (s Session) Authenticated() bool {
	return s.State == SessionAuthenticated && s.User != nil
}
