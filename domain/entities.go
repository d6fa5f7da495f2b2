package domain

import (
	"strings"
	"time"
)

// User represents an account in the Credential Store
type User struct {
	ID              string
	Email           string
	Nickname        string
	PasswordHash    string
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsVerified reports whether the account finished email verification.
// EmailVerified and EmailVerifiedAt are always written together.
func (u *User) IsVerified() bool {
	return u.EmailVerified && u.EmailVerifiedAt != nil
}

// RegisterRequest carries the registration input
type RegisterRequest struct {
	Email    string
	Password string
	Nickname string
}

// AuthResult represents authentication outcome
type AuthResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresIn    int64
}

// CodeIssue describes a verification code that was stored and queued for delivery
type CodeIssue struct {
	Email     string
	Code      string
	Attempt   int64
	ExpiresAt time.Time
}

// DeliveryTask is the outbound message handed to the Code Delivery Gateway
type DeliveryTask struct {
	Email string
	Code  string
	TTL   time.Duration
}

// RefreshToken is the server-side record backing a refresh JWT
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
