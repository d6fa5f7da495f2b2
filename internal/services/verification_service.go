package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/infrastructure/cache"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// VerificationServiceImpl implements domain.VerificationService on the ephemeral store
type VerificationServiceImpl struct {
	store      domain.EphemeralStore
	limiter    domain.RateLimiter
	userRepo   domain.UserRepository
	dispatcher domain.CodeDispatcher
	audit      domain.AuditLogger
	codeTTL    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	store domain.EphemeralStore,
	limiter domain.RateLimiter,
	userRepo domain.UserRepository,
	dispatcher domain.CodeDispatcher,
	audit domain.AuditLogger,
	codeTTL time.Duration,
) *VerificationServiceImpl {
	return &VerificationServiceImpl{
		store:      store,
		limiter:    limiter,
		userRepo:   userRepo,
		dispatcher: dispatcher,
		audit:      audit,
		codeTTL:    codeTTL,
		now:        time.Now,
		logger:     slog.Default().With("component", "verification"),
	}
}

// Issue counts an attempt and, while under the limit, stores a fresh code and
// queues it for delivery. Over the limit the stored code is left untouched.
func (s *VerificationServiceImpl) Issue(ctx context.Context, email string) (*domain.CodeIssue, error) {
	email = domain.NormalizeEmail(email)

	attempt, err := s.limiter.RecordAttempt(ctx, email)
	if err != nil {
		return nil, err
	}

	if !s.limiter.Allowed(attempt) {
		maxAttempts, window := s.limiter.Limit()
		limitErr := &domain.ResendLimitError{MaxAttempts: maxAttempts, Window: window, Attempt: attempt}
		s.record(ctx, domain.NewAuditEvent(domain.EmailCodeRejectedEvent, "").
			WithEmail(email).
			WithMetadata("attempt", attempt).
			WithError(limitErr))
		return nil, limitErr
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	if err := s.store.SetWithTTL(ctx, cache.VerificationCodeKey(email), code, s.codeTTL); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	task := domain.DeliveryTask{Email: email, Code: code, TTL: s.codeTTL}
	if !s.dispatcher.Enqueue(task) {
		s.logger.Error("verification email delivery failed", "email", email, "error", "delivery queue unavailable")
		DiscardUndeliveredCode(s.store, s.logger, task)
	}

	s.record(ctx, domain.NewAuditEvent(domain.EmailCodeIssuedEvent, "").
		WithEmail(email).
		WithMetadata("attempt", attempt))

	return &domain.CodeIssue{
		Email:     email,
		Code:      code,
		Attempt:   attempt,
		ExpiresAt: s.now().Add(s.codeTTL),
	}, nil
}

// Verify checks code against the stored one. A wrong code leaves the stored
// code in place. The code is deleted only after the user row was updated.
func (s *VerificationServiceImpl) Verify(ctx context.Context, email, code string) error {
	email = domain.NormalizeEmail(email)
	key := cache.VerificationCodeKey(email)

	stored, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		s.recordFailure(ctx, email, domain.ErrCodeNotFound)
		return domain.ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read verification code: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		s.recordFailure(ctx, email, domain.ErrInvalidCode)
		return domain.ErrInvalidCode
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to load user for verification: %w", err)
	}

	if err := s.userRepo.MarkEmailVerified(ctx, user.ID, s.now()); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		// the account is verified; a leftover code expires on its own
		s.logger.Warn("failed to delete verification code", "email", email, "error", err)
	}

	s.record(ctx, domain.NewAuditEvent(domain.EmailVerifiedEvent, user.ID).WithEmail(email))
	return nil
}

// Resend issues a new code for an existing unverified account. Unknown and
// already verified emails succeed silently so callers cannot probe accounts.
func (s *VerificationServiceImpl) Resend(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Info("resend requested for unknown email", "email", email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load user for resend: %w", err)
	}
	if user.IsVerified() {
		s.logger.Info("resend requested for verified email", "email", email, "user_id", user.ID)
		return nil
	}

	_, err = s.Issue(ctx, email)
	return err
}

func (s *VerificationServiceImpl) recordFailure(ctx context.Context, email string, err error) {
	s.record(ctx, domain.NewAuditEvent(domain.EmailVerificationFailEvent, "").WithEmail(email).WithError(err))
}

func (s *VerificationServiceImpl) record(ctx context.Context, event *domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("failed to write audit event", "event", event.EventType, "error", err)
	}
}

// GenerateCode returns a zero-padded 6-digit code from crypto/rand
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

var _ domain.VerificationService = (*VerificationServiceImpl)(nil)
