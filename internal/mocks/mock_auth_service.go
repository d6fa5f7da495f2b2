package mocks

import (
	"context"
	"time"

	"github.com/you/accountsvc/domain"
)

// MockAuthService implements domain.AuthService interface for testing
type MockAuthService struct {
	RegisterFunc       func(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	LoginFunc          func(ctx context.Context, email, password string) (*domain.AuthResult, error)
	RefreshTokenFunc   func(ctx context.Context, refreshToken string) (*domain.AuthResult, error)
	LogoutFunc         func(ctx context.Context, userID, sessionID string) error
	GetUserProfileFunc func(ctx context.Context, userID string) (*domain.User, error)
}

// NewMockAuthService creates a new MockAuthService with default behaviors
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{}
}

// Register registers a new user
func (m *MockAuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return &domain.User{
		ID:        "user-1",
		Email:     req.Email,
		Nickname:  req.Nickname,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}, nil
}

// Login authenticates a user
func (m *MockAuthService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	now := time.Now()
	return &domain.AuthResult{
		User: &domain.User{
			ID:              "user-1",
			Email:           email,
			Nickname:        "neo",
			EmailVerified:   true,
			EmailVerifiedAt: &now,
		},
		AccessToken:  "access_token:user-1:sess-1",
		RefreshToken: "refresh_token:user-1:sess-1",
		SessionID:    "sess-1",
		ExpiresIn:    900,
	}, nil
}

// RefreshToken rotates a refresh token
func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, domain.ErrTokenInvalid
}

// Logout revokes the session
func (m *MockAuthService) Logout(ctx context.Context, userID, sessionID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, userID, sessionID)
	}
	return nil
}

// GetUserProfile returns the user's profile
func (m *MockAuthService) GetUserProfile(ctx context.Context, userID string) (*domain.User, error) {
	if m.GetUserProfileFunc != nil {
		return m.GetUserProfileFunc(ctx, userID)
	}
	return nil, domain.ErrUserNotFound
}

// Compile-time interface compliance verification
var _ domain.AuthService = (*MockAuthService)(nil)
