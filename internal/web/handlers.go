package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/inkpost/inkpost/internal/errorz"
)

// newViewHandler creates a HTTP Handler that renders the view with the given name.
func newViewHandler(s *Server, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.writeView(w, r, http.StatusOK, name, nil)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
	})
}

// newHandler creates a HTTP Handler that:
// 1. Maps the request to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Renders nothing with status 200, callers are expected to set onSuccess.
//
// Errors are written using the server error handler.
func newHandler[IN, OUT any](srv *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		s: srv,
		reqToInFunc: func(s shared) (IN, error) {
			return defaultReqToIn[IN](srv, s)
		},
		targetFunc: targetFunc,
		successFunc: func(c result[IN, OUT]) error {
			return defaultSuccess[IN, OUT](srv, c)
		},
		failFunc: func(s shared, err error) {
			srv.handleError(s.w, s.r, err)
		},
	}
}

// newInputHandler creates a HTTP Handler that:
// 1. Maps the request to a value of type IN.
// 2. Calls the target func with that value.
// 3. Writes a status 200 response to the client if target func was successful.
//
// Errors are written using the server error handler.
func newInputHandler[IN any](srv *Server, targetFunc func(context.Context, IN) error) *mapper[IN, struct{}] {
	return newHandler(srv, func(ctx context.Context, in IN) (struct{}, error) {
		err := targetFunc(ctx, in)
		if err != nil {
			return struct{}{}, err
		}

		return struct{}{}, nil
	})
}

// defaultReqToIn is the default way to map a request to a struct.
func defaultReqToIn[IN any](srv *Server, s shared) (IN, error) {
	var in IN
	err := s.r.ParseForm()
	if err != nil {
		return in, err
	}

	// Remove the CSRF token from the form, it won't need to be mapped
	// to any target types and the decoder will fail on it.
	s.r.Form.Del(csrfTokenField)

	err = srv.decoder.Decode(&in, s.r.Form)
	return in, decodeError(err)
}

func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput.Add(key, e)
		}

		return invalidInput
	}

	return err
}

// defaultSuccess is the default way to write a response to the client.
func defaultSuccess[IN, OUT any](_ *Server, r result[IN, OUT]) error {
	r.w.WriteHeader(http.StatusOK)
	return nil
}

// redirect saves the session and redirects with a 303, so that a browser
// follows a POST with a GET.
func (s *Server) redirect(sh shared, url string) error {
	if sh.sess.NeedsSave() {
		err := s.deps.SessionStore.Save(sh.r, sh.w, sh.sess)
		if err != nil {
			return err
		}
	}

	http.Redirect(sh.w, sh.r, url, http.StatusSeeOther)
	return nil
}
