package email

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// ErrInvalidEmail indicates an email address is not valid.
var ErrInvalidEmail = errors.New("invalid email address")

// Address is how inkpost represents email addresses. Addresses are
// stored in lowercase so lookups are case insensitive.
type Address string

// ParseAddress parses the given string and checks if it's shaped like an email address.
// It returns an error if the input is not a valid email address.
// Note that this doesn't guarantee the email address actually exists, it only checks the format.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return Address(""), ErrInvalidEmail
	}

	// mail.ParseAddress accepts addresses with names and comments:
	// "Alice <alice@example.com>(comment)".
	//
	// We only want to accept inputs that consist of the address part.
	if addr.Address != trimmed {
		return Address(""), ErrInvalidEmail
	}

	return Address(strings.ToLower(addr.Address)), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr

	return nil
}

// LocalPart returns the part before the last @.
func (a Address) LocalPart() string {
	i := strings.LastIndex(string(a), "@")
	if i < 0 {
		return string(a)
	}
	return string(a)[:i]
}

// Masked returns the address with most of the local part replaced by
// asterisks, suitable for showing which inbox a message went to:
//
//	alice@example.com -> al***@example.com
//	ab@example.com    -> a*@example.com
func (a Address) Masked() string {
	i := strings.LastIndex(string(a), "@")
	if i < 0 {
		return string(a)
	}

	local, domain := string(a)[:i], string(a)[i+1:]

	n := utf8.RuneCountInString(local)
	visible := 2
	if n <= 2 {
		visible = 1
	}

	var b strings.Builder
	for j, r := range []rune(local) {
		if j >= visible {
			break
		}
		b.WriteRune(r)
	}

	b.WriteString(strings.Repeat("*", max(1, n-visible)))
	b.WriteString("@")
	b.WriteString(domain)

	return b.String()
}
