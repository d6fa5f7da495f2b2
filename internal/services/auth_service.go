package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/validation"
)

// AuthServiceImpl implements domain.AuthService
type AuthServiceImpl struct {
	userRepo        domain.UserRepository
	refreshRepo     domain.RefreshTokenRepository
	passwordSvc     domain.PasswordService
	passwordPolicy  domain.PasswordPolicy
	tokenSvc        domain.TokenService
	verificationSvc domain.VerificationService
	audit           domain.AuditLogger
	logger          *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// dummyPassword is hashed once so unknown-email logins cost one hash check
const dummyPassword = "unknown-account-placeholder"

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo domain.UserRepository,
	refreshRepo domain.RefreshTokenRepository,
	passwordSvc domain.PasswordService,
	passwordPolicy domain.PasswordPolicy,
	tokenSvc domain.TokenService,
	verificationSvc domain.VerificationService,
	audit domain.AuditLogger,
) domain.AuthService {
	return &AuthServiceImpl{
		userRepo:        userRepo,
		refreshRepo:     refreshRepo,
		passwordSvc:     passwordSvc,
		passwordPolicy:  passwordPolicy,
		tokenSvc:        tokenSvc,
		verificationSvc: verificationSvc,
		audit:           audit,
		logger:          slog.Default().With("component", "auth"),
	}
}

// Register implements domain.AuthService. The account is created unverified
// and a verification code is issued; issuing problems never fail the call.
func (s *AuthServiceImpl) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email := domain.NormalizeEmail(req.Email)
	nickname := strings.TrimSpace(req.Nickname)

	if err := validation.Email(email); err != nil {
		return nil, err
	}
	if err := validation.Nickname(nickname); err != nil {
		return nil, err
	}
	if err := s.passwordPolicy.Check(req.Password); err != nil {
		return nil, err
	}

	// Check if email or nickname is taken; the unique indexes still catch races
	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailAlreadyExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if _, err := s.userRepo.FindByNickname(ctx, nickname); err == nil {
		return nil, domain.ErrNicknameAlreadyExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check nickname: %w", err)
	}

	hashedPassword, err := s.passwordSvc.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		Email:        email,
		Nickname:     nickname,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailAlreadyExists) || errors.Is(err, domain.ErrNicknameAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.record(ctx, domain.NewAuditEvent(domain.UserRegistrationEvent, user.ID).WithEmail(email))

	if _, err := s.verificationSvc.Issue(ctx, email); err != nil {
		s.logger.Error("failed to issue verification code after registration", "email", email, "user_id", user.ID, "error", err)
	}

	return user, nil
}

func (s *AuthServiceImpl) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.passwordSvc.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// Login implements domain.AuthService
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	email = domain.NormalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		// same bcrypt work as a real account, so timing does not reveal the email
		s.passwordSvc.Verify(s.dummyPasswordHash(), password)
		s.loginFailed(ctx, "", email, domain.ErrInvalidCredentials)
		return nil, domain.ErrInvalidCredentials
	}

	if !s.passwordSvc.Verify(user.PasswordHash, password) {
		s.loginFailed(ctx, user.ID, email, domain.ErrInvalidCredentials)
		return nil, domain.ErrInvalidCredentials
	}

	// Only reported to callers who proved the password
	if !user.IsVerified() {
		s.loginFailed(ctx, user.ID, email, domain.ErrEmailNotVerified)
		return nil, domain.ErrEmailNotVerified
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.record(ctx, domain.NewAuditEvent(domain.UserLoginEvent, user.ID).
		WithEmail(email).
		WithSession(result.SessionID))
	return result, nil
}

// RefreshToken implements domain.AuthService. Refresh tokens are single use:
// the presented one is revoked before a new pair is issued.
func (s *AuthServiceImpl) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	claims, err := s.tokenSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	if _, err := s.refreshRepo.Find(ctx, claims.UserID, claims.SessionID); err != nil {
		return nil, err
	}

	if err := s.refreshRepo.Revoke(ctx, claims.UserID, claims.SessionID); err != nil {
		// lost a race with another refresh of the same token
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

// Logout implements domain.AuthService. Logging out an already revoked
// session succeeds.
func (s *AuthServiceImpl) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.refreshRepo.Revoke(ctx, userID, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	s.record(ctx, domain.NewAuditEvent(domain.UserLogoutEvent, userID).WithSession(sessionID))
	return nil
}

// GetUserProfile implements domain.AuthService
func (s *AuthServiceImpl) GetUserProfile(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

func (s *AuthServiceImpl) issueTokens(ctx context.Context, user *domain.User) (*domain.AuthResult, error) {
	now := time.Now()
	record := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.tokenSvc.RefreshTTL()),
		CreatedAt: now,
	}

	if err := s.refreshRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	accessToken, err := s.tokenSvc.GenerateAccessToken(user.ID, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.tokenSvc.GenerateRefreshToken(user.ID, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &domain.AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    record.ID,
		ExpiresIn:    int64(s.tokenSvc.AccessTTL().Seconds()),
	}, nil
}

func (s *AuthServiceImpl) loginFailed(ctx context.Context, userID, email string, cause error) {
	s.record(ctx, domain.NewAuditEvent(domain.UserLoginFailureEvent, userID).WithEmail(email).WithError(cause))
}

func (s *AuthServiceImpl) record(ctx context.Context, event *domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("failed to write audit event", "event", event.EventType, "error", err)
	}
}
