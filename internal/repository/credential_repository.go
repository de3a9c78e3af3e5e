package repository

import (
	"context"
	"sync"
)

// CredentialStore persists the bearer token. It is the single source of truth
// for whether a session is active and performs no validation of the token.
type CredentialStore interface {
	// Set replaces any prior token.
	Set(ctx context.Context, token string) error
	// Get returns the current token. Backend failures are logged and reported
	// as absence; Get never fails.
	Get(ctx context.Context) (string, bool)
	// Clear removes the token.
	Clear(ctx context.Context) error
}

type memoryCredentialStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryCredentialStore returns a process-local store.
func NewMemoryCredentialStore() CredentialStore {
	return &memoryCredentialStore{}
}

func (s *memoryCredentialStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memoryCredentialStore) Get(_ context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *memoryCredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
