package web

import (
	"net/http"

	"github.com/inkpost/inkpost/internal/errorz"
)

func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// publicOnly routes are only available to visitors that are not logged in.
func (s *Server) publicOnly(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isLoggedIn(r) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

func (s *Server) loggedIn(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isLoggedIn(r) {
			s.handleError(w, r, errorz.ErrNotFound)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

func (s *Server) isLoggedIn(r *http.Request) bool {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return false
	}

	_, ok := sess.UserID()
	return ok
}
