package web

import (
	"context"
	"net/http"

	"github.com/inkpost/inkpost/internal/web/sessions"
)

// mapper is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response.
type mapper[IN, OUT any] struct {
	s           *Server
	reqToInFunc func(shared) (IN, error)
	targetFunc  func(context.Context, IN) (OUT, error)
	successFunc func(result[IN, OUT]) error
	failFunc    func(shared, error)
}

// shared is the data available at every step of a request.
type shared struct {
	s    *Server
	w    http.ResponseWriter
	r    *http.Request
	sess *sessions.Session
}

// result is the result of a succesful request.
// it contains all relevant data because we can't know
// in advance what we will need to construct a response.
type result[IN, OUT any] struct {
	shared
	in  IN
	out OUT
}

// request overwrites the function that maps the request to the input type.
func (m *mapper[IN, OUT]) request(fn func(shared) (IN, error)) *mapper[IN, OUT] {
	m.reqToInFunc = fn
	return m
}

// onSuccess overwrites the function that writes the output to the response.
func (m *mapper[IN, OUT]) onSuccess(fn func(result[IN, OUT]) error) *mapper[IN, OUT] {
	m.successFunc = fn
	return m
}

// onFail overwrites the function that writes errors to the response.
func (m *mapper[IN, OUT]) onFail(fn func(shared, error)) *mapper[IN, OUT] {
	m.failFunc = fn
	return m
}

func (m *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		m.s.handleError(w, r, err)
		return
	}

	sh := shared{
		s:    m.s,
		w:    w,
		r:    r,
		sess: sess,
	}

	in, err := m.reqToInFunc(sh)
	if err != nil {
		m.failFunc(sh, err)
		return
	}

	out, err := m.targetFunc(r.Context(), in)
	if err != nil {
		m.failFunc(sh, err)
		return
	}

	err = m.successFunc(result[IN, OUT]{
		shared: sh,
		in:     in,
		out:    out,
	})
	if err != nil {
		m.s.handleError(w, r, err)
		return
	}
}
