package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/accountsvc/domain"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordService_HashAndVerify(t *testing.T) {
	svc := NewPasswordService(bcrypt.MinCost)

	hash, err := svc.Hash("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", hash)

	other, err := svc.Hash("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "hashes are salted")

	assert.True(t, svc.Verify(hash, "Secret123"))
	assert.False(t, svc.Verify(hash, "secret123"))
	assert.False(t, svc.Verify("not-a-hash", "Secret123"))
}

func TestPasswordPolicy_Check(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}

	tests := []struct {
		name     string
		password string
		reason   string
	}{
		{name: "valid", password: "Secret123"},
		{name: "too short", password: "Se1", reason: "at least 8"},
		{name: "no digit", password: "SecretPass", reason: "a digit"},
		{name: "no upper", password: "secret123", reason: "an uppercase letter"},
		{name: "too long", password: "A1" + strings.Repeat("a", 80), reason: "at most 72"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.password)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.True(t, errors.Is(err, domain.ErrWeakPassword))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestPasswordPolicy_Symbol(t *testing.T) {
	policy := PasswordPolicy{MinLength: 4, RequireSymbol: true}

	assert.Error(t, policy.Check("abcd"))
	assert.NoError(t, policy.Check("ab!d"))
}
