package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/email/smtp"
	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/inkpost/inkpost/internal/ratelimit"
	"github.com/inkpost/inkpost/internal/verification"
	"github.com/inkpost/inkpost/internal/web"
	"golang.org/x/crypto/bcrypt"
)

const (
	emailDriverLog  = "log"
	emailDriverSMTP = "smtp"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	// cookieKeys are used in pairs to sign and encrypt session cookies.
	cookieKeys []krypto.Key
	// viewDir, when set, makes the server load templates from disk on every request.
	viewDir string
	server  web.ServerConfig
}

type dbConfig struct {
	file    string
	migrate bool
}

type emailConfig struct {
	driver  string
	service email.ServiceConfig
	smtp    smtp.Settings
}

type rateLimitConfig struct {
	// redisURL selects a shared redis counter, an in-memory counter is used when empty.
	redisURL string
	verify   ratelimit.EmailVerificationConfig
}

// config is the configuration for the server command.
type config struct {
	http            httpConfig
	db              dbConfig
	email           emailConfig
	rateLimit       rateLimitConfig
	verification    verification.Config
	auth            auth.ServiceConfig
	cleanupInterval time.Duration
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			server: web.ServerConfig{
				SecureCookie: true,
			},
		},
		db: dbConfig{
			file:    "inkpost.db",
			migrate: true,
		},
		email: emailConfig{
			driver: emailDriverLog,
			service: email.ServiceConfig{
				BaseURL: &url.URL{Scheme: "http", Host: "localhost:8888"},
			},
			smtp: smtp.Settings{
				Port:       587,
				RequireTLS: true,
				Timeout:    time.Second * 10,
			},
		},
		rateLimit: rateLimitConfig{
			verify: ratelimit.DefaultEmailVerificationConfig(),
		},
		verification: verification.DefaultConfig(),
		auth: auth.ServiceConfig{
			WorkerTimeout: time.Second * 10,
			TokenExpiry:   time.Hour,
		},
		cleanupInterval: time.Minute,
	}
}

// requiredEnv lists the environment variables that have no default.
var requiredEnv = []string{
	"HTTP_COOKIE_KEYS",
	"HTTP_CSRF_KEY",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_COOKIE_KEYS": func(v string, c *config) error {
		keys, err := krypto.ParseKeys(v)
		if err != nil {
			return err
		}
		c.http.cookieKeys = keys
		return nil
	},
	"HTTP_CSRF_KEY": func(v string, c *config) error {
		key, err := krypto.ParseKey(v)
		if err != nil {
			return err
		}
		c.http.server.CSRFKey = key
		return nil
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.server.SecureCookie)
	},
	"HTTP_TRUST_PROXY": func(v string, c *config) error {
		return confBool(v, &c.http.server.TrustProxy)
	},
	"HTTP_VIEW_DIR": func(v string, c *config) error {
		c.http.viewDir = v
		return nil
	},
	"BASE_URL": func(v string, c *config) error {
		u, err := url.Parse(v)
		if err != nil {
			return err
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.New("url needs a scheme and a host")
		}
		c.email.service.BaseURL = u
		return nil
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty filename")
		}
		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.service.From = addr
		return nil
	},
	"EMAIL_DRIVER": func(v string, c *config) error {
		switch v {
		case emailDriverLog, emailDriverSMTP:
			c.email.driver = v
			return nil
		default:
			return fmt.Errorf("unknown driver %q, want %q or %q", v, emailDriverLog, emailDriverSMTP)
		}
	},
	"SMTP_HOST": func(v string, c *config) error {
		c.email.smtp.Host = v
		return nil
	},
	"SMTP_PORT": func(v string, c *config) error {
		return confInt(v, &c.email.smtp.Port, 1, math.MaxUint16)
	},
	"SMTP_USERNAME": func(v string, c *config) error {
		c.email.smtp.Username = v
		return nil
	},
	"SMTP_PASSWORD": func(v string, c *config) error {
		c.email.smtp.Password = krypto.NewSecret(v)
		return nil
	},
	"SMTP_TLS": func(v string, c *config) error {
		return confBool(v, &c.email.smtp.RequireTLS)
	},
	"REDIS_URL": func(v string, c *config) error {
		c.rateLimit.redisURL = v
		return nil
	},
	"VERIFY_CODE_TTL": func(v string, c *config) error {
		return confDuration(v, &c.verification.CodeTTL, time.Second, math.MaxInt64)
	},
	"VERIFY_SESSION_TTL": func(v string, c *config) error {
		return confDuration(v, &c.verification.SessionTTL, time.Second, math.MaxInt64)
	},
	"VERIFY_RESEND_COOLDOWN": func(v string, c *config) error {
		return confDuration(v, &c.verification.ResendCooldown, 0, math.MaxInt64)
	},
	"VERIFY_CODE_COST": func(v string, c *config) error {
		return confInt(v, &c.verification.CodeHashCost, bcrypt.MinCost, bcrypt.MaxCost)
	},
	"RATELIMIT_VERIFY_WINDOW": func(v string, c *config) error {
		return confDuration(v, &c.rateLimit.verify.Window, time.Second, math.MaxInt64)
	},
	"RATELIMIT_VERIFY_MAX_PER_EMAIL": func(v string, c *config) error {
		return confInt64(v, &c.rateLimit.verify.MaxPerEmail, 1, math.MaxInt64)
	},
	"RATELIMIT_VERIFY_MAX_PER_IP": func(v string, c *config) error {
		return confInt64(v, &c.rateLimit.verify.MaxPerIP, 1, math.MaxInt64)
	},
	"AUTH_WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.WorkerTimeout, 0, math.MaxInt64)
	},
	"AUTH_TOKEN_EXPIRY": func(v string, c *config) error {
		return confDuration(v, &c.auth.TokenExpiry, 0, math.MaxInt64)
	},
	"CLEANUP_INTERVAL": func(v string, c *config) error {
		return confDuration(v, &c.cleanupInterval, time.Second, math.MaxInt64)
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredEnv {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	if len(errs) == 0 && c.email.driver == emailDriverSMTP && c.email.smtp.Host == "" {
		errs = append(errs, errors.New("env variable SMTP_HOST is required for the smtp email driver"))
	}

	return c, errors.Join(errs...)
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}

// confInt attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confInt(v string, tgt *int, min, max int) error {
	var n int64
	err := confInt64(v, &n, int64(min), int64(max))
	if err != nil {
		return err
	}

	*tgt = int(n)

	return nil
}

func confInt64(v string, tgt *int64, min, max int64) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}

	if n < min || n > max {
		return fmt.Errorf("%d not in range [%d, %d] (inclusive)", n, min, max)
	}

	*tgt = n

	return nil
}
