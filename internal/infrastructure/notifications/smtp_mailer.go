package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/you/accountsvc/domain"
	"gopkg.in/gomail.v2"
)

const verificationSubject = "Verify your email address"

// transport delivers one message, giving up when ctx ends
type transport interface {
	Send(ctx context.Context, m *gomail.Message) error
}

// SMTPMailer implements domain.Mailer over SMTP
type SMTPMailer struct {
	transport transport
	from      string
}

// NewSMTPMailer creates a mailer. With an empty host it returns a LogMailer
// that only writes the message to the log.
func NewSMTPMailer(host string, port int, username, password, from string) domain.Mailer {
	if host == "" {
		return &LogMailer{}
	}
	return &SMTPMailer{
		transport: &smtpTransport{host: host, port: port, username: username, password: password},
		from:      from,
	}
}

// SendVerificationCode implements domain.Mailer. The send runs on the
// calling goroutine and ctx bounds every network operation, so an error
// other than domain.ErrDeliveryUnconfirmed means nothing was delivered.
func (s *SMTPMailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	if err := s.transport.Send(ctx, s.buildMessage(to, code, ttl)); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func (s *SMTPMailer) buildMessage(to, code string, ttl time.Duration) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", verificationSubject)
	m.SetBody("text/plain", fmt.Sprintf(`Hello!

Your verification code is:

    %s

This code will expire in %d minutes.

If you didn't create an account, you can safely ignore this email.`, code, int(ttl.Minutes())))
	m.AddAlternative("text/html", fmt.Sprintf(`
		<p>Your verification code is:</p>
		<h2>%s</h2>
		<p>This code will expire in %d minutes.</p>
		<p>If you didn't create an account, you can safely ignore this email.</p>
	`, code, int(ttl.Minutes())))
	return m
}

// LogMailer writes verification codes to the log instead of sending them
type LogMailer struct{}

func (LogMailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	slog.Info("verification email not sent, smtp disabled",
		"component", "mailer", "to", to, "code", code, "ttl", ttl)
	return nil
}
