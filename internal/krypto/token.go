package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

const (
	tokenLen     = 32
	tokenHashLen = sha256.Size
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidTokenHash = errors.New("invalid token hash")
)

// Token is a random token handed to a client, via email or a cookie.
//
// The only time a token should be provided in plaintext is as part of
// an email or a cookie. Tokens are confidential and should never be
// exposed in logs or persisted in plaintext, persist the TokenHash instead.
type Token [tokenLen]byte

// GenerateToken creates a new random token.
func GenerateToken() (Token, error) {
	b, err := genRandomBytes(tokenLen)
	if err != nil {
		return Token{}, err
	}
	return Token(b), nil
}

// ParseToken parses a token from its hex representation.
func ParseToken(raw string) (Token, error) {
	if len(raw) != tokenLen*2 {
		return Token{}, ErrInvalidToken
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	return Token(b), nil
}

// String returns the hex representation of the token.
// As opposed to a Password this is allowed, we need to embed the
// token in emails and cookies.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// UnmarshalText allows tokens to be decoded from form values.
func (t *Token) UnmarshalText(text []byte) error {
	parsed, err := ParseToken(string(text))
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}

// LogValue implements the slog.LogValuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// Hash returns the SHA-256 hash of the token.
//
// Tokens carry 256 bits of entropy, so a fast unsalted hash is enough to
// make a leaked hash useless while still allowing lookups by hash.
func (t Token) Hash() TokenHash {
	return TokenHash(sha256.Sum256(t[:]))
}

// TokenHash is the SHA-256 hash of a Token. It is persisted as hex.
type TokenHash [tokenHashLen]byte

// ParseTokenHash parses a token hash from its hex representation.
func ParseTokenHash(raw string) (TokenHash, error) {
	if len(raw) != tokenHashLen*2 {
		return TokenHash{}, ErrInvalidTokenHash
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return TokenHash{}, ErrInvalidTokenHash
	}

	return TokenHash(b), nil
}

func (h TokenHash) String() string {
	return hex.EncodeToString(h[:])
}

// Equal compares two hashes in constant time.
func (h TokenHash) Equal(other TokenHash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// Match reports whether t hashes to h.
func (h TokenHash) Match(t Token) bool {
	return h.Equal(t.Hash())
}

// Value implements driver.Valuer.
func (h TokenHash) Value() (driver.Value, error) {
	return h.String(), nil
}

// Scan implements sql.Scanner.
func (h *TokenHash) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into token hash", src)
	}

	parsed, err := ParseTokenHash(raw)
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

func genRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}
