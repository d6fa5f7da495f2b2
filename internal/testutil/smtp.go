package testutil

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SMTPServer is a minimal SMTP endpoint on loopback. It records every
// message whose terminating dot it reads, before replying, the way a real
// server commits a message before acknowledging it.
type SMTPServer struct {
	Host string
	Port int

	greetingDelay time.Duration
	acceptDelay   time.Duration

	ln       net.Listener
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	messages []string
}

// SMTPOption configures an SMTPServer
type SMTPOption func(*SMTPServer)

// WithGreetingDelay holds back the 220 banner, stalling a client before it
// can send anything.
func WithGreetingDelay(d time.Duration) SMTPOption {
	return func(s *SMTPServer) { s.greetingDelay = d }
}

// WithAcceptDelay holds back the reply to the end of DATA, after the message
// has been recorded.
func WithAcceptDelay(d time.Duration) SMTPOption {
	return func(s *SMTPServer) { s.acceptDelay = d }
}

// NewSMTPServer starts a server that is shut down when t ends
func NewSMTPServer(t *testing.T, opts ...SMTPOption) *SMTPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().(*net.TCPAddr)
	s := &SMTPServer{
		Host: addr.IP.String(),
		Port: addr.Port,
		ln:   ln,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(func() {
		close(s.done)
		ln.Close()
		s.wg.Wait()
	})
	return s
}

// Messages returns the raw DATA of every recorded message
func (s *SMTPServer) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *SMTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *SMTPServer) handle(conn net.Conn) {
	defer conn.Close()

	reply := func(line string) bool {
		_, err := io.WriteString(conn, line+"\r\n")
		return err == nil
	}

	if !s.pause(s.greetingDelay) || !reply("220 test.local ESMTP") {
		return
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))

		var ok bool
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			ok = reply("250 test.local")
		case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"),
			cmd == "RSET", cmd == "NOOP":
			ok = reply("250 OK")
		case cmd == "DATA":
			if !reply("354 End data with <CR><LF>.<CR><LF>") {
				return
			}
			body, err := readData(r)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, body)
			s.mu.Unlock()
			ok = s.pause(s.acceptDelay) && reply("250 OK queued")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			ok = reply("502 Command not implemented")
		}
		if !ok {
			return
		}
	}
}

func readData(r *bufio.Reader) (string, error) {
	var body strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if line == ".\r\n" {
			return body.String(), nil
		}
		body.WriteString(line)
	}
}

func (s *SMTPServer) pause(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-s.done:
		return false
	}
}
