package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/infrastructure/auth"
	"github.com/you/accountsvc/internal/infrastructure/cache"
	"github.com/you/accountsvc/internal/infrastructure/repositories"
	"github.com/you/accountsvc/internal/mocks"
	"github.com/you/accountsvc/internal/testutil"
)

// recordingAudit captures audit events in order
type recordingAudit struct {
	mu     sync.Mutex
	events []*domain.AuditEvent
}

func (r *recordingAudit) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) types() []domain.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// stubDispatcher accepts or refuses every task and remembers what it took
type stubDispatcher struct {
	refuse bool
	tasks  []domain.DeliveryTask
}

func (d *stubDispatcher) Enqueue(task domain.DeliveryTask) bool {
	if d.refuse {
		return false
	}
	d.tasks = append(d.tasks, task)
	return true
}

func (d *stubDispatcher) lastCode() string {
	if len(d.tasks) == 0 {
		return ""
	}
	return d.tasks[len(d.tasks)-1].Code
}

const (
	testCodeTTL      = 10 * time.Minute
	testResendWindow = time.Hour
	testResendMax    = 3
)

// stack is the service graph on SQLite and miniredis with a mock mailer
type stack struct {
	mr           *miniredis.Miniredis
	store        *cache.RedisStore
	users        domain.UserRepository
	mailer       *mocks.MockMailer
	dispatcher   *DeliveryDispatcher
	audit        *recordingAudit
	verification *VerificationServiceImpl
	auth         domain.AuthService
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db := testutil.NewTestDB(t)
	mr, client := testutil.NewTestRedis(t)

	s := &stack{
		mr:     mr,
		store:  cache.NewRedisStore(client),
		users:  repositories.NewUserRepository(db),
		mailer: mocks.NewMockMailer(),
		audit:  &recordingAudit{},
	}

	s.dispatcher = NewDeliveryDispatcher(s.mailer, s.store, s.audit, DispatcherConfig{
		Workers:     2,
		QueueSize:   16,
		SendTimeout: time.Second,
	})
	s.dispatcher.Start()
	t.Cleanup(func() { _ = s.dispatcher.Close(context.Background()) })

	limiter := NewRateLimiter(s.store, testResendMax, testResendWindow)
	s.verification = NewVerificationService(s.store, limiter, s.users, s.dispatcher, s.audit, testCodeTTL)

	policy := auth.PasswordPolicy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true}
	tokens := auth.NewJWTService("test-secret-at-least-32-bytes-long!!", "accountsvc-test", 15*time.Minute, 24*time.Hour)
	refresh := repositories.NewRefreshTokenRepository(client, tokens.RefreshTTL())
	s.auth = NewAuthService(s.users, refresh, auth.NewPasswordService(4), policy, tokens, s.verification, s.audit)

	return s
}

// drain waits for queued deliveries to finish
func (s *stack) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Close(ctx); err != nil {
		t.Fatalf("dispatcher did not drain: %v", err)
	}
}

func (s *stack) storedCode(t *testing.T, email string) (string, bool) {
	t.Helper()
	code, err := s.mr.Get(cache.VerificationCodeKey(email))
	if err != nil {
		return "", false
	}
	return code, true
}

func (s *stack) counter(t *testing.T, email string) string {
	t.Helper()
	n, err := s.mr.Get(cache.ResendCounterKey(email))
	if err != nil {
		return ""
	}
	return n
}
