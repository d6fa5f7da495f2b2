package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/infrastructure/cache"
	"github.com/you/accountsvc/internal/mocks"
)

var sixDigits = regexp.MustCompile(`^\d{6}$`)

func unverifiedUser(email string) *domain.User {
	return &domain.User{ID: "user-1", Email: email, Nickname: "neo"}
}

func newVerificationForTest(store domain.EphemeralStore, users domain.UserRepository, dispatcher domain.CodeDispatcher) *VerificationServiceImpl {
	limiter := NewRateLimiter(store, testResendMax, testResendWindow)
	return NewVerificationService(store, limiter, users, dispatcher, &recordingAudit{}, testCodeTTL)
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestVerificationService_Issue(t *testing.T) {
	store := mocks.NewMockEphemeralStore()
	dispatcher := &stubDispatcher{}
	svc := newVerificationForTest(store, mocks.NewMockUserRepository(), dispatcher)

	issue, err := svc.Issue(context.Background(), "  U@Test.com ")
	require.NoError(t, err)

	assert.Equal(t, "u@test.com", issue.Email)
	assert.Regexp(t, sixDigits, issue.Code)
	assert.Equal(t, int64(1), issue.Attempt)

	stored, err := store.Get(context.Background(), cache.VerificationCodeKey("u@test.com"))
	require.NoError(t, err)
	assert.Equal(t, issue.Code, stored)

	require.Len(t, dispatcher.tasks, 1)
	assert.Equal(t, domain.DeliveryTask{Email: "u@test.com", Code: issue.Code, TTL: testCodeTTL}, dispatcher.tasks[0])
}

func TestVerificationService_IssueOverLimitLeavesCode(t *testing.T) {
	store := mocks.NewMockEphemeralStore()
	dispatcher := &stubDispatcher{}
	svc := newVerificationForTest(store, mocks.NewMockUserRepository(), dispatcher)
	ctx := context.Background()

	var last *domain.CodeIssue
	for i := 0; i < testResendMax; i++ {
		issue, err := svc.Issue(ctx, "u@test.com")
		require.NoError(t, err)
		last = issue
	}

	_, err := svc.Issue(ctx, "u@test.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResendLimitExceeded)

	var limitErr *domain.ResendLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, int64(4), limitErr.Attempt)
	assert.Contains(t, err.Error(), "resend limit exceeded")

	stored, err := store.Get(ctx, cache.VerificationCodeKey("u@test.com"))
	require.NoError(t, err)
	assert.Equal(t, last.Code, stored)
	assert.Len(t, dispatcher.tasks, testResendMax)
}

func TestVerificationService_IssueQueueRefused(t *testing.T) {
	store := mocks.NewMockEphemeralStore()
	svc := newVerificationForTest(store, mocks.NewMockUserRepository(), &stubDispatcher{refuse: true})

	_, err := svc.Issue(context.Background(), "u@test.com")
	require.NoError(t, err)

	_, err = store.Get(context.Background(), cache.VerificationCodeKey("u@test.com"))
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestVerificationService_IssueStoreUnavailable(t *testing.T) {
	store := mocks.NewMockEphemeralStore()
	store.Err = errors.New("connection refused")
	dispatcher := &stubDispatcher{}
	svc := newVerificationForTest(store, mocks.NewMockUserRepository(), dispatcher)

	_, err := svc.Issue(context.Background(), "u@test.com")
	require.Error(t, err)
	assert.Empty(t, dispatcher.tasks)
}

func TestVerificationService_Verify(t *testing.T) {
	tests := []struct {
		name          string
		storedCode    string
		submitted     string
		markErr       error
		expectedError error
		codeRemains   bool
		markCalled    bool
	}{
		{
			name:       "correct code",
			storedCode: "482913",
			submitted:  "482913",
			markCalled: true,
		},
		{
			name:          "wrong code keeps stored code",
			storedCode:    "482913",
			submitted:     "999999",
			expectedError: domain.ErrInvalidCode,
			codeRemains:   true,
		},
		{
			name:          "no code stored",
			submitted:     "482913",
			expectedError: domain.ErrCodeNotFound,
		},
		{
			name:        "user update failure keeps code for retry",
			storedCode:  "482913",
			submitted:   "482913",
			markErr:     errors.New("database is locked"),
			codeRemains: true,
			markCalled:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := mocks.NewMockEphemeralStore()
			key := cache.VerificationCodeKey("u@test.com")
			if tt.storedCode != "" {
				require.NoError(t, store.SetWithTTL(ctx, key, tt.storedCode, testCodeTTL))
			}

			markCalled := false
			users := mocks.NewMockUserRepository()
			users.FindByEmailFunc = func(ctx context.Context, email string) (*domain.User, error) {
				return unverifiedUser(email), nil
			}
			users.MarkEmailVerifiedFunc = func(ctx context.Context, userID string, at time.Time) error {
				markCalled = true
				assert.Equal(t, "user-1", userID)
				return tt.markErr
			}

			svc := newVerificationForTest(store, users, &stubDispatcher{})
			err := svc.Verify(ctx, "U@test.com", tt.submitted)

			switch {
			case tt.markErr != nil:
				assert.ErrorIs(t, err, tt.markErr)
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.markCalled, markCalled)

			stored, getErr := store.Get(ctx, key)
			if tt.codeRemains {
				require.NoError(t, getErr)
				assert.Equal(t, tt.storedCode, stored)
			} else {
				assert.ErrorIs(t, getErr, domain.ErrKeyNotFound)
			}
		})
	}
}

func TestVerificationService_VerifyExpiredCode(t *testing.T) {
	now := time.Now()
	store := mocks.NewMockEphemeralStore()
	store.Now = func() time.Time { return now }
	svc := newVerificationForTest(store, mocks.NewMockUserRepository(), &stubDispatcher{})
	ctx := context.Background()

	issue, err := svc.Issue(ctx, "u@test.com")
	require.NoError(t, err)

	now = now.Add(testCodeTTL)

	assert.ErrorIs(t, svc.Verify(ctx, "u@test.com", issue.Code), domain.ErrCodeNotFound)
}

func TestVerificationService_Resend(t *testing.T) {
	verifiedAt := time.Now()

	tests := []struct {
		name        string
		user        *domain.User
		findErr     error
		expectIssue bool
	}{
		{
			name:        "unverified user gets a new code",
			user:        unverifiedUser("u@test.com"),
			expectIssue: true,
		},
		{
			name:    "unknown email succeeds silently",
			findErr: domain.ErrUserNotFound,
		},
		{
			name: "verified user succeeds silently",
			user: &domain.User{ID: "user-1", Email: "u@test.com", EmailVerified: true, EmailVerifiedAt: &verifiedAt},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockEphemeralStore()
			dispatcher := &stubDispatcher{}
			users := mocks.NewMockUserRepository()
			users.FindByEmailFunc = func(ctx context.Context, email string) (*domain.User, error) {
				if tt.findErr != nil {
					return nil, tt.findErr
				}
				return tt.user, nil
			}
			svc := newVerificationForTest(store, users, dispatcher)

			require.NoError(t, svc.Resend(context.Background(), "u@test.com"))

			_, counterErr := store.Get(context.Background(), cache.ResendCounterKey("u@test.com"))
			if tt.expectIssue {
				assert.Len(t, dispatcher.tasks, 1)
				assert.NoError(t, counterErr)
			} else {
				assert.Empty(t, dispatcher.tasks)
				assert.ErrorIs(t, counterErr, domain.ErrKeyNotFound)
			}
		})
	}
}

func TestVerificationService_ResendLookupFailure(t *testing.T) {
	users := mocks.NewMockUserRepository()
	users.FindByEmailFunc = func(ctx context.Context, email string) (*domain.User, error) {
		return nil, errors.New("connection reset")
	}
	svc := newVerificationForTest(mocks.NewMockEphemeralStore(), users, &stubDispatcher{})

	assert.Error(t, svc.Resend(context.Background(), "u@test.com"))
}
