package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/ratelimit"
)

func Test_EmailVerificationLimiter(t *testing.T) {
	cfg := ratelimit.EmailVerificationConfig{
		Window:      time.Minute,
		MaxPerEmail: 2,
		MaxPerIP:    3,
	}

	t.Run("ok, denies after max per email", func(t *testing.T) {
		l := ratelimit.NewEmailVerificationLimiter(ratelimit.NewMemoryCounter(), cfg)

		for i := 0; i < 2; i++ {
			d := check(t, l, "alice@example.com", "10.0.0.1")
			if !d.Allowed {
				t.Fatalf("request %d: expected allowed", i)
			}
		}

		d := check(t, l, "alice@example.com", "10.0.0.2")
		if d.Allowed {
			t.Fatalf("expected denied")
		}

		if d.Message != ratelimit.DeniedMessage {
			t.Errorf("got message %q, want %q", d.Message, ratelimit.DeniedMessage)
		}
	})

	t.Run("ok, denies after max per ip", func(t *testing.T) {
		l := ratelimit.NewEmailVerificationLimiter(ratelimit.NewMemoryCounter(), cfg)

		for _, addr := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			d := check(t, l, addr, "10.0.0.1")
			if !d.Allowed {
				t.Fatalf("%s: expected allowed", addr)
			}
		}

		d := check(t, l, "d@example.com", "10.0.0.1")
		if d.Allowed {
			t.Fatalf("expected denied")
		}

		d = check(t, l, "d@example.com", "10.0.0.2")
		if !d.Allowed {
			t.Fatalf("expected other ip to be allowed")
		}
	})

	t.Run("ok, empty ip only counts email", func(t *testing.T) {
		l := ratelimit.NewEmailVerificationLimiter(ratelimit.NewMemoryCounter(), cfg)

		for _, addr := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
			d := check(t, l, addr, "")
			if !d.Allowed {
				t.Fatalf("%s: expected allowed", addr)
			}
		}
	})

	t.Run("ok, redis counter", func(t *testing.T) {
		_, client := newTestRedis(t)
		l := ratelimit.NewEmailVerificationLimiter(ratelimit.NewRedisCounter(client, "inkpost:"), cfg)

		check(t, l, "alice@example.com", "10.0.0.1")
		check(t, l, "alice@example.com", "10.0.0.1")

		d := check(t, l, "alice@example.com", "10.0.0.1")
		if d.Allowed {
			t.Fatalf("expected denied")
		}
	})

	t.Run("fail, counter error", func(t *testing.T) {
		mr, client := newTestRedis(t)
		mr.Close()

		l := ratelimit.NewEmailVerificationLimiter(ratelimit.NewRedisCounter(client, "inkpost:"), cfg)
		_, err := l.CheckEmailVerification(context.Background(), "alice@example.com", "10.0.0.1")
		if err == nil {
			t.Fatalf("expected error, got <nil>")
		}
	})
}

func check(t *testing.T, l *ratelimit.EmailVerificationLimiter, addr, ip string) ratelimit.Decision {
	t.Helper()

	d, err := l.CheckEmailVerification(context.Background(), email.Address(addr), ip)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return d
}
