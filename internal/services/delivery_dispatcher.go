package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/infrastructure/cache"
)

// DispatcherConfig sizes the delivery worker pool
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// DeliveryDispatcher hands verification codes to the mailer off the request
// path. A failed send removes the code it carried, unless a newer code has
// replaced it in the meantime. A send the mailer cannot confirm either way
// keeps its code, since the email may already be in the inbox.
type DeliveryDispatcher struct {
	mailer  domain.Mailer
	store   domain.EphemeralStore
	audit   domain.AuditLogger
	config  DispatcherConfig
	logger  *slog.Logger
	tasks   chan domain.DeliveryTask
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewDeliveryDispatcher creates a dispatcher; call Start to launch workers
func NewDeliveryDispatcher(mailer domain.Mailer, store domain.EphemeralStore, audit domain.AuditLogger, config DispatcherConfig) *DeliveryDispatcher {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	return &DeliveryDispatcher{
		mailer: mailer,
		store:  store,
		audit:  audit,
		config: config,
		logger: slog.Default().With("component", "delivery"),
		tasks:  make(chan domain.DeliveryTask, config.QueueSize),
	}
}

// Start launches the worker goroutines. It is a no-op after the first call.
func (d *DeliveryDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Enqueue queues task without blocking. It returns false when the queue is
// full or the dispatcher is closed.
func (d *DeliveryDispatcher) Enqueue(task domain.DeliveryTask) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops intake and waits for queued tasks to drain or ctx to end
func (d *DeliveryDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	started := d.started
	d.mu.Unlock()

	if !started {
		// nothing will consume what is left in the queue
		for task := range d.tasks {
			d.fail(task, context.Canceled)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DeliveryDispatcher) work() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.deliver(task)
	}
}

func (d *DeliveryDispatcher) deliver(task domain.DeliveryTask) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
	defer cancel()

	if err := d.mailer.SendVerificationCode(ctx, task.Email, task.Code, task.TTL); err != nil {
		d.fail(task, err)
		return
	}
	d.logger.Debug("verification email sent", "email", task.Email)
}

// fail records a transport failure and withdraws the undelivered code
func (d *DeliveryDispatcher) fail(task domain.DeliveryTask, cause error) {
	if errors.Is(cause, domain.ErrDeliveryUnconfirmed) {
		d.logger.Warn("verification email delivery unconfirmed, keeping code", "email", task.Email, "error", cause)
	} else {
		d.logger.Error("verification email delivery failed", "email", task.Email, "error", cause)
		DiscardUndeliveredCode(d.store, d.logger, task)
	}

	if d.audit != nil {
		event := domain.NewAuditEvent(domain.CodeDeliveryFailureEvent, "").
			WithEmail(task.Email).
			WithError(cause)
		_ = d.audit.LogEvent(context.Background(), event)
	}
}

// DiscardUndeliveredCode deletes the code key only while it still holds the
// undelivered code.
func DiscardUndeliveredCode(store domain.EphemeralStore, logger *slog.Logger, task domain.DeliveryTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	removed, err := store.CompareAndDelete(ctx, cache.VerificationCodeKey(task.Email), task.Code)
	if err != nil {
		logger.Warn("failed to discard undelivered verification code", "email", task.Email, "error", err)
		return
	}
	if removed {
		logger.Info("undelivered verification code discarded", "email", task.Email)
	}
}

var _ domain.CodeDispatcher = (*DeliveryDispatcher)(nil)
