package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/collab-client/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCredentialRotated EventType = "credential_rotated"
	EventCredentialRevoked EventType = "credential_revoked"
	EventCredentialCleared EventType = "credential_cleared"
	EventSessionChanged    EventType = "session_changed"
)

// Rotation sources.
const (
	SourceHeader  = "header"
	SourceRefresh = "refresh"
	SourceLogin   = "login"
)

// Event represents a session or credential change.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CredentialRotatedPayload payload. The token itself is never carried.
type CredentialRotatedPayload struct {
	Source    string `json:"source"`
	Operation string `json:"operation,omitempty"`
}

// CredentialRevokedPayload payload.
type CredentialRevokedPayload struct {
	Reason    string `json:"reason"`
	Operation string `json:"operation,omitempty"`
}

// CredentialClearedPayload is published after the stored credential is
// removed, whatever the cause.
type CredentialClearedPayload struct {
	Reason string `json:"reason"`
}

// SessionChangedPayload payload.
type SessionChangedPayload struct {
	Session domain.Session `json:"session"`
}

// New stamps an event with an id and time.
func New(eventType EventType, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
