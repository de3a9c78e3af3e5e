package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(signup{Name: "Ada", Email: "ada@example.com", Password: "secret1"}))

	err := ValidateStruct(signup{Email: "not-an-email", Password: "abc"})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeValidationFailed))

	domainErr := ToDomainError(err)
	assert.Equal(t, "name is required", domainErr.Details["name"])
	assert.Equal(t, "email must be a valid email", domainErr.Details["email"])
	assert.Equal(t, "password must be at least 6 characters", domainErr.Details["password"])
}
