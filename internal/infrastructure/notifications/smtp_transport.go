package notifications

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"time"

	"github.com/you/accountsvc/domain"
	"gopkg.in/gomail.v2"
)

const defaultDialTimeout = 10 * time.Second

// smtpTransport speaks SMTP the way gomail.Dialer does, but over a
// connection whose deadline follows ctx. gomail.Dialer has no timeout, so a
// server that accepts and then stalls would hold a send forever.
type smtpTransport struct {
	host     string
	port     int
	username string
	password string
}

func (t *smtpTransport) Send(ctx context.Context, m *gomail.Message) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// cancellation without a deadline still unblocks pending I/O
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return t.wrap(ctx, err)
	}
	defer client.Close()

	if err := t.hello(client); err != nil {
		return t.wrap(ctx, err)
	}

	s := &clientSender{client: client}
	if err := gomail.Send(s, m); err != nil {
		// gomail flattens the cause into text; keep the original chain
		if s.err != nil {
			err = s.err
		}
		// a reply, even a rejection, settles the outcome
		var reply *textproto.Error
		if s.bodyWritten && !errors.As(err, &reply) {
			return fmt.Errorf("%w: %w", domain.ErrDeliveryUnconfirmed, t.wrap(ctx, err))
		}
		return t.wrap(ctx, err)
	}

	// the message is accepted; a failed QUIT does not undo that
	_ = client.Quit()
	return nil
}

func (t *smtpTransport) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	dialer := &net.Dialer{Timeout: defaultDialTimeout}

	var conn net.Conn
	var err error
	if t.port == 465 {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: t.host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (t *smtpTransport) hello(client *smtp.Client) error {
	if err := client.Hello("localhost"); err != nil {
		return err
	}
	if t.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
				return err
			}
		}
	}
	if t.username == "" {
		return nil
	}
	if ok, _ := client.Extension("AUTH"); !ok {
		return errors.New("smtp: server doesn't support AUTH")
	}
	return client.Auth(smtp.PlainAuth("", t.username, t.password, t.host))
}

// wrap prefers the context error when the deadline is what broke the connection
func (t *smtpTransport) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

// clientSender adapts *smtp.Client to gomail.Sender and records whether the
// server could already hold the full message.
type clientSender struct {
	client      *smtp.Client
	bodyWritten bool
	err         error
}

func (s *clientSender) Send(from string, to []string, msg io.WriterTo) error {
	s.err = s.send(from, to, msg)
	return s.err
}

func (s *clientSender) send(from string, to []string, msg io.WriterTo) error {
	if err := s.client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := s.client.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := s.client.Data()
	if err != nil {
		return err
	}
	// on a write error the terminating dot is never sent, so the server
	// discards the partial message when the connection closes
	if _, err := msg.WriteTo(w); err != nil {
		return err
	}
	// Close sends the terminating dot and waits for the acceptance reply
	s.bodyWritten = true
	return w.Close()
}
