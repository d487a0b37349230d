package verification

import "github.com/inkpost/inkpost/internal/krypto"

// Actor is whoever is interacting with the verification flow. It is one of
// AuthenticatedUser, SessionUser or Unresolved.
type Actor interface {
	actor()
}

// AuthenticatedUser is a user with a login session.
type AuthenticatedUser struct {
	Record Record
	// SessionToken is the verification session token of the client, if it
	// was present and bound to this user.
	SessionToken *krypto.Token
}

// SessionUser is a user identified by the verification session cookie only.
type SessionUser struct {
	Record Record
	Token  krypto.Token
}

// Unresolved means no user could be tied to the request.
type Unresolved struct{}

func (AuthenticatedUser) actor() {}
func (SessionUser) actor()       {}
func (Unresolved) actor()        {}

// RecordOf returns the record of the actor, ok is false for Unresolved actors.
func RecordOf(a Actor) (Record, bool) {
	switch v := a.(type) {
	case AuthenticatedUser:
		return v.Record, true
	case SessionUser:
		return v.Record, true
	default:
		return Record{}, false
	}
}

func sessionTokenOf(a Actor) *krypto.Token {
	switch v := a.(type) {
	case AuthenticatedUser:
		return v.SessionToken
	case SessionUser:
		tok := v.Token
		return &tok
	default:
		return nil
	}
}

// Page describes what the verification page should offer the actor.
type Page struct {
	CanVerify   bool
	Verified    bool
	MaskedEmail string
}

// Describe returns the page state for the actor.
func Describe(a Actor) Page {
	rec, ok := RecordOf(a)
	if !ok {
		return Page{}
	}

	return Page{
		CanVerify:   !rec.IsVerified(),
		Verified:    rec.IsVerified(),
		MaskedEmail: rec.Email.Masked(),
	}
}
