package notifications

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/testutil"
)

type captureTransport struct {
	messages []*gomail.Message
	err      error
}

func (c *captureTransport) Send(ctx context.Context, m *gomail.Message) error {
	c.messages = append(c.messages, m)
	return c.err
}

func TestSMTPMailer_SendVerificationCode(t *testing.T) {
	capture := &captureTransport{}
	mailer := &SMTPMailer{transport: capture, from: "no-reply@test.local"}

	err := mailer.SendVerificationCode(context.Background(), "u@test.com", "123456", 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, capture.messages, 1)

	msg := capture.messages[0]
	assert.Equal(t, []string{"u@test.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"no-reply@test.local"}, msg.GetHeader("From"))
	assert.Equal(t, []string{verificationSubject}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "123456")
	assert.Contains(t, buf.String(), "10 minutes")
}

func TestSMTPMailer_TransportFailure(t *testing.T) {
	mailer := &SMTPMailer{transport: &captureTransport{err: errors.New("connection refused")}, from: "x@test.local"}

	err := mailer.SendVerificationCode(context.Background(), "u@test.com", "123456", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func newLoopbackMailer(srv *testutil.SMTPServer) domain.Mailer {
	return NewSMTPMailer(srv.Host, srv.Port, "", "", "no-reply@test.local")
}

func TestSMTPMailer_DeliversOverSMTP(t *testing.T) {
	srv := testutil.NewSMTPServer(t)
	mailer := newLoopbackMailer(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, mailer.SendVerificationCode(ctx, "u@test.com", "123456", 10*time.Minute))

	messages := srv.Messages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "123456")
	assert.Contains(t, messages[0], "u@test.com")
}

func TestSMTPMailer_StalledServerTimesOutWithoutDelivery(t *testing.T) {
	srv := testutil.NewSMTPServer(t, testutil.WithGreetingDelay(2*time.Second))
	mailer := newLoopbackMailer(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := mailer.SendVerificationCode(ctx, "u@test.com", "123456", time.Minute)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrDeliveryUnconfirmed)
	assert.Less(t, time.Since(start), time.Second, "send must return at the deadline")
	assert.Empty(t, srv.Messages())
}

func TestSMTPMailer_MissingAcceptanceIsUnconfirmed(t *testing.T) {
	srv := testutil.NewSMTPServer(t, testutil.WithAcceptDelay(2*time.Second))
	mailer := newLoopbackMailer(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := mailer.SendVerificationCode(ctx, "u@test.com", "123456", time.Minute)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeliveryUnconfirmed)
	assert.Eventually(t, func() bool { return len(srv.Messages()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSMTPMailer_CanceledContextStopsSend(t *testing.T) {
	srv := testutil.NewSMTPServer(t, testutil.WithGreetingDelay(2*time.Second))
	mailer := newLoopbackMailer(srv)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := mailer.SendVerificationCode(ctx, "u@test.com", "123456", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, srv.Messages())
}

func TestNewSMTPMailer_NoHostLogsOnly(t *testing.T) {
	mailer := NewSMTPMailer("", 0, "", "", "")
	_, ok := mailer.(*LogMailer)
	require.True(t, ok)
	assert.NoError(t, mailer.SendVerificationCode(context.Background(), "u@test.com", "123456", time.Minute))
}
