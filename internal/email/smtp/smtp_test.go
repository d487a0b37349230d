package smtp_test

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inkpost/inkpost/internal/email/smtp"
)

func Test_Sender_Send(t *testing.T) {
	t.Run("ok, message is delivered", func(t *testing.T) {
		srv := runFakeServer(t)

		sender := smtp.NewSender(smtp.Settings{
			Host:    "127.0.0.1",
			Port:    srv.port,
			Timeout: 2 * time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := sender.Send(ctx, "inkpost@example.com", "alice@example.com", "Your verification code", "Your code is 123456.")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data := srv.waitForData(t)
		for _, want := range []string{"Subject: Your verification code", "alice@example.com", "123456"} {
			if !strings.Contains(data, want) {
				t.Errorf("data\n%s\ndoes not contain %q", data, want)
			}
		}
	})

	t.Run("fail, invalid recipient", func(t *testing.T) {
		sender := smtp.NewSender(smtp.Settings{
			Host: "127.0.0.1",
			Port: 2525,
		})

		err := sender.Send(context.Background(), "inkpost@example.com", "@@", "subject", "body")
		if err == nil {
			t.Fatalf("expected error, got <nil>")
		}
	})

	t.Run("fail, relay unreachable", func(t *testing.T) {
		// grab a free port and close it again, so nothing is listening.
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		port := l.Addr().(*net.TCPAddr).Port
		_ = l.Close()

		sender := smtp.NewSender(smtp.Settings{
			Host:    "127.0.0.1",
			Port:    port,
			Timeout: time.Second,
		})

		err = sender.Send(context.Background(), "inkpost@example.com", "alice@example.com", "subject", "body")
		if err == nil {
			t.Fatalf("expected error, got <nil>")
		}
	})
}

// fakeServer speaks just enough SMTP to accept a single message.
type fakeServer struct {
	port int
	mu   sync.Mutex
	data []string
	done chan struct{}
}

func runFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	t.Cleanup(func() {
		_ = l.Close()
	})

	srv := &fakeServer{
		port: l.Addr().(*net.TCPAddr).Port,
		done: make(chan struct{}),
	}

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		srv.serve(conn)
	}()

	return srv
}

func (s *fakeServer) serve(conn net.Conn) {
	defer close(s.done)

	r := bufio.NewReader(conn)
	write := func(line string) {
		_, _ = conn.Write([]byte(line + "\r\n"))
	}

	write("220 fake.example.com ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 fake.example.com")
		case cmd == "DATA":
			write("354 end data with <CR><LF>.<CR><LF>")
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(dl, "\r\n") == "." {
					break
				}
				s.mu.Lock()
				s.data = append(s.data, dl)
				s.mu.Unlock()
			}
			write("250 queued as " + strconv.Itoa(s.port))
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("250 ok")
		}
	}
}

func (s *fakeServer) waitForData(t *testing.T) string {
	t.Helper()

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for smtp session to end")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.data, "")
}
