package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/accountsvc/domain"
)

func register(t *testing.T, s *stack, email, nickname string) *domain.User {
	t.Helper()
	user, err := s.auth.Register(context.Background(), domain.RegisterRequest{
		Email:    email,
		Password: "Passw0rd!",
		Nickname: nickname,
	})
	require.NoError(t, err)
	return user
}

func lastSentCode(t *testing.T, s *stack, email string) string {
	t.Helper()
	var code string
	for _, m := range s.mailer.Sent() {
		if m.To == email {
			code = m.Code
		}
	}
	require.NotEmpty(t, code, "no code sent to %s", email)
	return code
}

func TestAccountFlow_RegisterTwiceSameEmail(t *testing.T) {
	s := newStack(t)
	register(t, s, "u@test.com", "neo")

	_, err := s.auth.Register(context.Background(), domain.RegisterRequest{
		Email:    "U@Test.com",
		Password: "Passw0rd!",
		Nickname: "trinity",
	})
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyExists)
}

func TestAccountFlow_ConcurrentRegistrationOneWins(t *testing.T) {
	s := newStack(t)

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.auth.Register(context.Background(), domain.RegisterRequest{
				Email:    "race@test.com",
				Password: "Passw0rd!",
				Nickname: "racer" + strconv.Itoa(i),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrEmailAlreadyExists)
	}
	assert.Equal(t, 1, succeeded)
}

func TestAccountFlow_VerifyThenLogin(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	user := register(t, s, "u@test.com", "neo")

	code, ok := s.storedCode(t, "u@test.com")
	require.True(t, ok)
	assert.Regexp(t, sixDigits, code)
	assert.Equal(t, "1", s.counter(t, "u@test.com"))

	_, err := s.auth.Login(ctx, "u@test.com", "Passw0rd!")
	assert.ErrorIs(t, err, domain.ErrEmailNotVerified)

	_, err = s.auth.Login(ctx, "u@test.com", "wrong-Passw0rd")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.NoError(t, s.verification.Verify(ctx, "u@test.com", code))

	_, ok = s.storedCode(t, "u@test.com")
	assert.False(t, ok)

	verified, err := s.users.FindByEmail(ctx, "u@test.com")
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)
	assert.NotNil(t, verified.EmailVerifiedAt)

	result, err := s.auth.Login(ctx, "u@test.com", "Passw0rd!")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.NotEqual(t, result.AccessToken, result.RefreshToken)
	assert.Equal(t, user.ID, result.User.ID)
	assert.Equal(t, "u@test.com", result.User.Email)
	assert.Equal(t, "neo", result.User.Nickname)

	// the code is single use
	assert.ErrorIs(t, s.verification.Verify(ctx, "u@test.com", code), domain.ErrCodeNotFound)

	s.drain(t)
	assert.Equal(t, []string{code}, sentCodes(s, "u@test.com"))
}

func TestAccountFlow_RateLimitBoundary(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	register(t, s, "u@test.com", "neo")
	assert.Equal(t, "1", s.counter(t, "u@test.com"))

	var codes []string
	first, _ := s.storedCode(t, "u@test.com")
	codes = append(codes, first)

	for attempt := 2; attempt <= 3; attempt++ {
		require.NoError(t, s.verification.Resend(ctx, "u@test.com"))
		assert.Equal(t, strconv.Itoa(attempt), s.counter(t, "u@test.com"))
		code, ok := s.storedCode(t, "u@test.com")
		require.True(t, ok)
		codes = append(codes, code)
	}

	err := s.verification.Resend(ctx, "u@test.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResendLimitExceeded)
	assert.Contains(t, err.Error(), "resend limit exceeded")
	assert.Equal(t, "4", s.counter(t, "u@test.com"))

	stored, ok := s.storedCode(t, "u@test.com")
	require.True(t, ok)
	assert.Equal(t, codes[2], stored)

	s.drain(t)
	assert.ElementsMatch(t, codes, sentCodes(s, "u@test.com"))
	assert.Contains(t, s.audit.types(), domain.EmailCodeRejectedEvent)
}

func TestAccountFlow_RateLimitWindowExpires(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	register(t, s, "u@test.com", "neo")

	for i := 0; i < 3; i++ {
		_ = s.verification.Resend(ctx, "u@test.com")
	}
	require.ErrorIs(t, s.verification.Resend(ctx, "u@test.com"), domain.ErrResendLimitExceeded)

	s.mr.FastForward(testResendWindow)

	require.NoError(t, s.verification.Resend(ctx, "u@test.com"))
	assert.Equal(t, "1", s.counter(t, "u@test.com"))
}

func TestAccountFlow_WrongCodeThenRightCode(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	register(t, s, "u2@test.com", "morpheus")

	code, ok := s.storedCode(t, "u2@test.com")
	require.True(t, ok)

	wrong := "999999"
	if code == wrong {
		wrong = "000000"
	}
	assert.ErrorIs(t, s.verification.Verify(ctx, "u2@test.com", wrong), domain.ErrInvalidCode)

	stillStored, ok := s.storedCode(t, "u2@test.com")
	require.True(t, ok)
	assert.Equal(t, code, stillStored)

	require.NoError(t, s.verification.Verify(ctx, "u2@test.com", code))
	s.drain(t)
	assert.Equal(t, code, lastSentCode(t, s, "u2@test.com"))
}

func TestAccountFlow_CodeExpires(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	register(t, s, "u@test.com", "neo")

	code, ok := s.storedCode(t, "u@test.com")
	require.True(t, ok)

	s.mr.FastForward(testCodeTTL)

	assert.ErrorIs(t, s.verification.Verify(ctx, "u@test.com", code), domain.ErrCodeNotFound)
}

func TestAccountFlow_MailTransportDown(t *testing.T) {
	s := newStack(t)
	s.mailer.SendVerificationCodeFunc = func(ctx context.Context, to, code string, ttl time.Duration) error {
		return errors.New("dial tcp 127.0.0.1:1025: connection refused")
	}
	ctx := context.Background()

	user := register(t, s, "u@test.com", "neo")
	s.drain(t)

	stored, err := s.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailVerified)
	assert.Nil(t, stored.EmailVerifiedAt)

	_, ok := s.storedCode(t, "u@test.com")
	assert.False(t, ok)
	assert.Equal(t, "1", s.counter(t, "u@test.com"))
	assert.Contains(t, s.audit.types(), domain.CodeDeliveryFailureEvent)
}

func TestAccountFlow_EphemeralStoreDownStillRegisters(t *testing.T) {
	s := newStack(t)
	s.mr.SetError("ERR simulated outage")
	ctx := context.Background()

	user := register(t, s, "u@test.com", "neo")

	stored, err := s.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsVerified())

	// verification fails closed while the store is unreachable
	assert.Error(t, s.verification.Verify(ctx, "u@test.com", "123456"))

	s.mr.SetError("")
	require.NoError(t, s.verification.Resend(ctx, "u@test.com"))
	_, ok := s.storedCode(t, "u@test.com")
	assert.True(t, ok)
}

func TestAccountFlow_RefreshAndLogout(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	register(t, s, "u@test.com", "neo")
	code, _ := s.storedCode(t, "u@test.com")
	require.NoError(t, s.verification.Verify(ctx, "u@test.com", code))

	login, err := s.auth.Login(ctx, "u@test.com", "Passw0rd!")
	require.NoError(t, err)

	rotated, err := s.auth.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.SessionID, rotated.SessionID)

	// a refresh token works once
	_, err = s.auth.RefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, s.auth.Logout(ctx, rotated.User.ID, rotated.SessionID))
	_, err = s.auth.RefreshToken(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func sentCodes(s *stack, email string) []string {
	var codes []string
	for _, m := range s.mailer.Sent() {
		if m.To == email {
			codes = append(codes, m.Code)
		}
	}
	return codes
}
