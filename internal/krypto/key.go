package krypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const keyLen = 32

var ErrInvalidKey = errors.New("invalid key")

// Key is a 32 byte secret, used for signing and encrypting cookies
// and CSRF tokens. It redacts itself like any other Secret.
type Key struct {
	Secret
}

// ParseKey expects a hex encoded key of 32 bytes (64 characters).
func ParseKey(raw string) (Key, error) {
	if len(raw) != keyLen*2 {
		return Key{}, ErrInvalidKey
	}

	k, err := hex.DecodeString(raw)
	if err != nil {
		return Key{}, ErrInvalidKey
	}

	return Key{Secret{value: k}}, nil
}

// ParseKeys parses a comma separated list of hex encoded keys.
func ParseKeys(raw string) ([]Key, error) {
	parts := strings.Split(raw, ",")
	keys := make([]Key, 0, len(parts))
	for i, p := range parts {
		k, err := ParseKey(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, k)
	}

	return keys, nil
}
