package audit

import (
	"context"
	"log/slog"

	"github.com/you/accountsvc/domain"
)

// SlogAuditLogger writes audit events as structured log records
type SlogAuditLogger struct {
	logger *slog.Logger
}

func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("component", "audit")}
}

func (l *SlogAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	attrs := []any{
		"event", string(event.EventType),
		"success", event.Success,
		"timestamp", event.Timestamp,
	}
	if event.UserID != "" {
		attrs = append(attrs, "user_id", event.UserID)
	}
	if event.Email != "" {
		attrs = append(attrs, "email", event.Email)
	}
	if event.SessionID != "" {
		attrs = append(attrs, "session_id", event.SessionID)
	}
	if event.ErrorMsg != "" {
		attrs = append(attrs, "error", event.ErrorMsg)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "audit event", attrs...)
	return nil
}

var _ domain.AuditLogger = (*SlogAuditLogger)(nil)
