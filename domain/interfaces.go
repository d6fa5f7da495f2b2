package domain

import (
	"context"
	"time"
)

// UserRepository defines Credential Store operations
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByNickname(ctx context.Context, nickname string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
}

// EphemeralStore is the key-value store with per-key expiry holding
// verification codes, resend counters and refresh token records.
type EphemeralStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Incr atomically increments key and returns the new value. The ttl is
	// applied only when the increment created the key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, keys ...string) error
	// CompareAndDelete removes key only if it still holds expected.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RefreshTokenRepository stores refresh token records
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	Find(ctx context.Context, userID, tokenID string) (*RefreshToken, error)
	Revoke(ctx context.Context, userID, tokenID string) error
	RevokeAll(ctx context.Context, userID string) error
}

// AuthService defines registration, login and token business logic
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, userID, sessionID string) error
	GetUserProfile(ctx context.Context, userID string) (*User, error)
}

// VerificationService defines email verification code operations
type VerificationService interface {
	Issue(ctx context.Context, email string) (*CodeIssue, error)
	Verify(ctx context.Context, email, code string) error
	Resend(ctx context.Context, email string) error
}

// RateLimiter counts verification email attempts per email
type RateLimiter interface {
	RecordAttempt(ctx context.Context, email string) (int64, error)
	Allowed(attempt int64) bool
	Limit() (int, time.Duration)
}

// PasswordService defines password operations
type PasswordService interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) bool
}

// PasswordPolicy checks password complexity
type PasswordPolicy interface {
	Check(password string) error
}

// TokenService defines token operations
type TokenService interface {
	GenerateAccessToken(userID, sessionID string) (string, error)
	GenerateRefreshToken(userID, sessionID string) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
	ValidateRefreshToken(token string) (*TokenClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// Mailer is the Code Delivery Gateway transport
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error
}

// CodeDispatcher hands delivery tasks to the gateway without blocking
type CodeDispatcher interface {
	Enqueue(task DeliveryTask) bool
}

// TokenClaims represents JWT token claims
type TokenClaims struct {
	UserID    string `json:"sub"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	TokenID   string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Token types carried in the typ claim
const (
	AccessTokenType  = "access"
	RefreshTokenType = "refresh"
)
