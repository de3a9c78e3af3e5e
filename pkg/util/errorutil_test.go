package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("login: %w", NewInvalidCredentials("wrong password"))

	assert.True(t, HasCode(err, CodeInvalidCredentials))
	assert.False(t, HasCode(err, CodeAccountExists))
	assert.False(t, HasCode(errors.New("plain"), CodeInvalidCredentials))
}

func TestNewInvalidCredentials_KeepsServerMessage(t *testing.T) {
	err := NewInvalidCredentials("No account for that email")

	assert.Equal(t, "No account for that email", err.Error())
	assert.Equal(t, "invalid credentials", NewInvalidCredentials("").Error())
}

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		status   int
	}{
		{name: "domain error passes through", err: NewAccountExists(""), wantCode: CodeAccountExists, status: http.StatusConflict},
		{name: "plain error becomes internal", err: errors.New("boom"), wantCode: CodeInternal, status: http.StatusInternalServerError},
		{name: "network", err: NewNetworkUnavailable(errors.New("dial tcp")), wantCode: CodeNetworkUnavailable, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			require.NotNil(t, de)
			assert.Equal(t, tt.wantCode, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
		})
	}

	assert.Nil(t, ToDomainError(nil))
}

func TestTokenRefreshed(t *testing.T) {
	assert.True(t, TokenRefreshed(NewAuthenticationExpired("", true)))
	assert.False(t, TokenRefreshed(NewAuthenticationExpired("", false)))
	assert.False(t, TokenRefreshed(NewUnauthorized("nope")))
	assert.True(t, TokenRefreshed(fmt.Errorf("me: %w", NewAuthenticationExpired("", true))))
}

func TestNetworkUnavailable_Unwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewNetworkUnavailable(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}
