package mocks

import (
	"context"

	"github.com/you/accountsvc/domain"
)

// MockVerificationService implements domain.VerificationService interface for testing
type MockVerificationService struct {
	IssueFunc  func(ctx context.Context, email string) (*domain.CodeIssue, error)
	VerifyFunc func(ctx context.Context, email, code string) error
	ResendFunc func(ctx context.Context, email string) error
}

// NewMockVerificationService creates a new MockVerificationService with default behaviors
func NewMockVerificationService() *MockVerificationService {
	return &MockVerificationService{}
}

// Issue stores and queues a new code
func (m *MockVerificationService) Issue(ctx context.Context, email string) (*domain.CodeIssue, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, email)
	}
	return &domain.CodeIssue{Email: email, Code: "123456", Attempt: 1}, nil
}

// Verify checks a submitted code
func (m *MockVerificationService) Verify(ctx context.Context, email, code string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, code)
	}
	return nil
}

// Resend re-issues a code
func (m *MockVerificationService) Resend(ctx context.Context, email string) error {
	if m.ResendFunc != nil {
		return m.ResendFunc(ctx, email)
	}
	return nil
}

// Compile-time interface compliance verification
var _ domain.VerificationService = (*MockVerificationService)(nil)
