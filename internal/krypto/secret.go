package krypto

import (
	"fmt"
	"log/slog"
)

// SecretMarker is a string we can look for in logs to see if the app
// is accidentally exposing secrets.
const SecretMarker = "<!SECRET_REDACTED!>"

// Secret is arbitrary sensitive data that needs to be passed
// around but not exposed. Things like SMTP passwords or other credentials.
type Secret struct {
	value []byte
}

func NewSecret(raw string) Secret {
	return Secret{
		value: []byte(raw),
	}
}

// IsEmpty reports whether the secret holds no data.
func (s Secret) IsEmpty() bool {
	return len(s.value) == 0
}

func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(SecretMarker))
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(SecretMarker), nil
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// SecretValue returns the raw bytes. This is an escape hatch for
// handing the secret to third party packages.
func (s Secret) SecretValue() []byte {
	return s.value
}
