package web

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/inkpost/inkpost/internal"
	"github.com/inkpost/inkpost/internal/errorz"
)

type viewData struct {
	Version    string
	CSRFField  string
	CSRFToken  string
	IsLoggedIn bool
	UserID     uuid.UUID
	Flashes    []string
	InputForm  url.Values
	// Message is a form level error message.
	Message string
	// InputErrors holds a message per invalid form field.
	InputErrors map[string]string
	Data        any
}

// prepViewData prepares the data that will be passed to the view.
// Flashes are consumed, so the session needs to be saved before the view is written.
func (s *Server) prepViewData(r *http.Request, data any) (*viewData, error) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return nil, err
	}

	userID, loggedIn := sess.UserID()

	return &viewData{
		Version:    internal.ShortRevision(),
		CSRFField:  csrfTokenField,
		CSRFToken:  csrf.Token(r),
		IsLoggedIn: loggedIn,
		UserID:     userID,
		Flashes:    sess.ConsumeFlashes(),
		InputForm:  r.Form,
		Data:       data,
	}, nil
}

// withInputErrors sets a message for every keyed error in err, if any.
func (vd *viewData) withInputErrors(err error) *viewData {
	var invalidInput errorz.InvalidInput
	if !errors.As(err, &invalidInput) {
		return vd
	}

	vd.InputErrors = invalidInput.ByKey()
	return vd
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, status int, name string, data any) error {
	vd, err := s.prepViewData(r, data)
	if err != nil {
		return err
	}

	return s.writeViewData(w, r, status, name, vd)
}

func (s *Server) writeViewData(w http.ResponseWriter, r *http.Request, status int, name string, vd *viewData) error {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return err
	}

	// render before writing any headers.
	var buf bytes.Buffer
	err = s.deps.ViewRenderer.Render(&buf, name, vd)
	if err != nil {
		return err
	}

	if sess.NeedsSave() {
		err = s.deps.SessionStore.Save(r, w, sess)
		if err != nil {
			return err
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}
