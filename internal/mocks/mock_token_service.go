package mocks

import (
	"fmt"
	"strings"
	"time"

	"github.com/you/accountsvc/domain"
)

// MockTokenService implements domain.TokenService interface for testing
type MockTokenService struct {
	GenerateAccessTokenFunc  func(userID, sessionID string) (string, error)
	GenerateRefreshTokenFunc func(userID, sessionID string) (string, error)
	ValidateAccessTokenFunc  func(token string) (*domain.TokenClaims, error)
	ValidateRefreshTokenFunc func(token string) (*domain.TokenClaims, error)
}

// NewMockTokenService creates a new MockTokenService with default behaviors
func NewMockTokenService() *MockTokenService {
	return &MockTokenService{}
}

// GenerateAccessToken generates an access token for the user
func (m *MockTokenService) GenerateAccessToken(userID, sessionID string) (string, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(userID, sessionID)
	}
	return fmt.Sprintf("access_token:%s:%s", userID, sessionID), nil
}

// GenerateRefreshToken generates a refresh token for the user
func (m *MockTokenService) GenerateRefreshToken(userID, sessionID string) (string, error) {
	if m.GenerateRefreshTokenFunc != nil {
		return m.GenerateRefreshTokenFunc(userID, sessionID)
	}
	return fmt.Sprintf("refresh_token:%s:%s", userID, sessionID), nil
}

// ValidateAccessToken parses tokens produced by the default GenerateAccessToken
func (m *MockTokenService) ValidateAccessToken(token string) (*domain.TokenClaims, error) {
	if m.ValidateAccessTokenFunc != nil {
		return m.ValidateAccessTokenFunc(token)
	}
	return parseMockToken(token, "access_token", domain.AccessTokenType)
}

// ValidateRefreshToken parses tokens produced by the default GenerateRefreshToken
func (m *MockTokenService) ValidateRefreshToken(token string) (*domain.TokenClaims, error) {
	if m.ValidateRefreshTokenFunc != nil {
		return m.ValidateRefreshTokenFunc(token)
	}
	return parseMockToken(token, "refresh_token", domain.RefreshTokenType)
}

func (m *MockTokenService) AccessTTL() time.Duration  { return 15 * time.Minute }
func (m *MockTokenService) RefreshTTL() time.Duration { return 7 * 24 * time.Hour }

func parseMockToken(token, prefix, tokenType string) (*domain.TokenClaims, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] != prefix {
		return nil, domain.ErrTokenInvalid
	}
	now := time.Now()
	return &domain.TokenClaims{
		UserID:    parts[1],
		SessionID: parts[2],
		TokenID:   parts[2],
		TokenType: tokenType,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(15 * time.Minute).Unix(),
	}, nil
}

// Compile-time interface compliance verification
var _ domain.TokenService = (*MockTokenService)(nil)
