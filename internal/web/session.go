package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/inkpost/inkpost/internal/web/sessions"
)

var errNoSession = errors.New("no session in request context")

// sessionMiddleware loads the session into the request context. Handlers
// save it themselves when they modify it. Responses of session backed pages
// carry CSRF tokens and must not be cached.
func sessionMiddleware(srv *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := srv.deps.SessionStore.Get(r)
			if err != nil {
				srv.handleError(w, r, err)
				return
			}

			w.Header().Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r.WithContext(ctxWithSession(r.Context(), sess)))
		})
	}
}

type sessionCtxKey struct{}

func ctxWithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sess)
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := ctx.Value(sessionCtxKey{}).(*sessions.Session)
	if !ok {
		return nil, errNoSession
	}

	return sess, nil
}
