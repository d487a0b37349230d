package sessions

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const CookieName = "ink-session"

// Store loads and saves sessions from a gorilla sessions store.
type Store struct {
	store sessions.Store
}

func NewStore(store sessions.Store) *Store {
	return &Store{store: store}
}

// NewCookieStore returns a Store that keeps sessions in signed and encrypted cookies.
// keyPairs are passed to the gorilla cookie store as is, see sessions.NewCookieStore.
func NewCookieStore(secure bool, keyPairs ...[]byte) *Store {
	cs := sessions.NewCookieStore(keyPairs...)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return NewStore(cs)
}

// Get returns the session of the request. A cookie that can't be decoded,
// for example after the keys were rotated, results in a new session.
func (s *Store) Get(r *http.Request) (*Session, error) {
	base, err := s.store.Get(r, CookieName)
	if err != nil && (base == nil || !base.IsNew) {
		return nil, err
	}

	return &Session{base: base}, nil
}

func (s *Store) Save(r *http.Request, w http.ResponseWriter, sess *Session) error {
	err := s.store.Save(r, w, sess.base)
	if err != nil {
		return err
	}

	sess.needsSave = false
	return nil
}
