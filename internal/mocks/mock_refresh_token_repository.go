package mocks

import (
	"context"

	"github.com/you/accountsvc/domain"
)

// MockRefreshTokenRepository implements domain.RefreshTokenRepository interface for testing
type MockRefreshTokenRepository struct {
	CreateFunc    func(ctx context.Context, token *domain.RefreshToken) error
	FindFunc      func(ctx context.Context, userID, tokenID string) (*domain.RefreshToken, error)
	RevokeFunc    func(ctx context.Context, userID, tokenID string) error
	RevokeAllFunc func(ctx context.Context, userID string) error
}

// NewMockRefreshTokenRepository creates a new MockRefreshTokenRepository with default behaviors
func NewMockRefreshTokenRepository() *MockRefreshTokenRepository {
	return &MockRefreshTokenRepository{}
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockRefreshTokenRepository) Find(ctx context.Context, userID, tokenID string) (*domain.RefreshToken, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, userID, tokenID)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockRefreshTokenRepository) Revoke(ctx context.Context, userID, tokenID string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, userID, tokenID)
	}
	return nil
}

func (m *MockRefreshTokenRepository) RevokeAll(ctx context.Context, userID string) error {
	if m.RevokeAllFunc != nil {
		return m.RevokeAllFunc(ctx, userID)
	}
	return nil
}

// Compile-time interface compliance verification
var _ domain.RefreshTokenRepository = (*MockRefreshTokenRepository)(nil)
