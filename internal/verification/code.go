package verification

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"unicode"

	"github.com/inkpost/inkpost/internal/krypto"
	"golang.org/x/crypto/bcrypt"
)

const codeLen = 6

var codeSpace = big.NewInt(1_000_000)

// Code is a six digit one-time verification code.
//
// A code is only ever shown to the user inside the verification email.
// It's persisted as a CodeHash and never logged.
type Code string

// GenerateCode returns a uniformly random code in [000000, 999999].
func GenerateCode() (Code, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return Code(fmt.Sprintf("%0*d", codeLen, n.Int64())), nil
}

// ParseCode normalizes user input by removing all whitespace and checks
// that exactly six ASCII digits remain.
func ParseCode(raw string) (Code, error) {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	if len(normalized) != codeLen {
		return "", ErrInvalidCodeFormat
	}

	for i := 0; i < len(normalized); i++ {
		if normalized[i] < '0' || normalized[i] > '9' {
			return "", ErrInvalidCodeFormat
		}
	}

	return Code(normalized), nil
}

// Hash hashes the code with bcrypt at the given cost.
func (c Code) Hash(cost int) (CodeHash, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(c), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash code: %w", err)
	}

	return CodeHash(h), nil
}

// Match reports whether the code matches the hash.
func (c Code) Match(h CodeHash) bool {
	if h == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(h), []byte(c)) == nil
}

// LogValue implements the slog.LogValuer interface.
func (c Code) LogValue() slog.Value {
	return slog.StringValue(krypto.SecretMarker)
}

// CodeHash is the bcrypt hash of a Code.
type CodeHash string
