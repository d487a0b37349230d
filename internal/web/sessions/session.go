package sessions

import (
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const userIDKey = "userID"

// Session wraps a gorilla session and keeps track of changes.
type Session struct {
	base      *sessions.Session
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

// UserID returns the ID of the logged in user, if any.
func (s *Session) UserID() (uuid.UUID, bool) {
	// stored as a string, gob would need a registered type otherwise.
	raw, ok := s.base.Values[userIDKey].(string)
	if !ok {
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}

	return userID, true
}

func (s *Session) SetUserID(userID uuid.UUID) {
	s.needsSave = true
	s.base.Values[userIDKey] = userID.String()
}

func (s *Session) DeleteUserID() {
	s.needsSave = true
	delete(s.base.Values, userIDKey)
}

func (s *Session) AddFlash(flash string) {
	s.needsSave = true
	s.base.AddFlash(flash)
}

// ConsumeFlashes returns all flashes and removes them from the session.
func (s *Session) ConsumeFlashes() []string {
	raw := s.base.Flashes()
	if len(raw) == 0 {
		return nil
	}

	s.needsSave = true

	flashes := make([]string, 0, len(raw))
	for _, f := range raw {
		if str, ok := f.(string); ok {
			flashes = append(flashes, str)
		}
	}

	return flashes
}
