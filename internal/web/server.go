package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"
	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/errorz"
	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/inkpost/inkpost/internal/verification"
	"github.com/inkpost/inkpost/internal/web/sessions"
)

const (
	csrfTokenField      = "csrf_token"
	csrfTokenCookieName = "ink-csrf"
)

// ViewRenderer renders named views with the given data.
type ViewRenderer interface {
	Render(w io.Writer, name string, data any) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger              *slog.Logger
	ViewRenderer        ViewRenderer
	AuthService         *auth.Service
	VerificationService *verification.Service
	SessionStore        *sessions.Store
	DistFS              http.FileSystem
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
	// TrustProxy makes the server use X-Forwarded-For as the client IP.
	TrustProxy bool
}

type Server struct {
	deps    *ServerDeps
	cfg     ServerConfig
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}

	// Most non-static endpoints below are created using the newHandler functions.
	// These functions return handlers that automatically map between HTTP requests, target functions and HTTP responses.
	// The request mapping and response writing is customizable.

	// Homepage endpoint.
	s.public("GET /{$}", newViewHandler(s, "home"))

	// Register user endpoints.
	{
		s.publicOnly("GET /register", newViewHandler(s, "register"))
	}
	{
		const route = "POST /register"
		h := newHandler(s, deps.AuthService.RegisterUser)
		h.onSuccess(func(r result[auth.NewUser, auth.Registration]) error {
			setVerificationCookie(r.w, r.out.Issued, deps.VerificationService.NowFunc(), cfg.SecureCookie)
			r.sess.AddFlash("Thank you for your registration. We sent a verification code to your inbox.")
			return s.redirect(r.shared, "/verify-email")
		})
		h.onFail(func(sh shared, err error) {
			if errors.Is(err, auth.ErrDuplicateUser) {
				sh.sess.AddFlash("An account with this email address already exists, login below.")
				err = s.redirect(sh, "/login")
			} else {
				err = s.formFailed(sh, "register", err)
			}

			if err != nil {
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}

	// Email verification endpoints.
	s.verificationRoutes()

	// Login user endpoints
	{
		s.publicOnly("GET /login", newViewHandler(s, "login"))
	}
	{
		const route = "POST /login"
		h := newHandler(s, deps.AuthService.Authenticate)
		h.onSuccess(func(r result[auth.Credentials, auth.User]) error {
			// We clear the CSRF token to provide defense in depth against fixation attacks.
			// A new CSRF token will be generated on the next GET request after the redirect.
			http.SetCookie(r.w, &http.Cookie{
				Name:   csrfTokenCookieName,
				Path:   "/",
				MaxAge: -1,
			})

			r.sess.SetUserID(r.out.ID)
			if !r.out.IsVerified() {
				return s.redirect(r.shared, "/verify-email")
			}

			return s.redirect(r.shared, "/dashboard")
		})
		h.onFail(func(sh shared, err error) {
			if errors.Is(err, errorz.ErrNotFound) {
				err = s.formMessage(sh, "login", http.StatusBadRequest, "Invalid email or password.")
			} else {
				err = s.formFailed(sh, "login", err)
			}

			if err != nil {
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}

	// Logout user endpoint
	{
		const route = "POST /logout"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			sess.DeleteUserID()
			err = s.redirect(shared{s: s, w: w, r: r, sess: sess}, "/")
			if err != nil {
				s.handleError(w, r, err)
			}
		})

		s.loggedIn(route, h)
	}

	// Request password reset endpoints
	{
		s.publicOnly("GET /forgot-password", newViewHandler(s, "forgot-password"))
	}
	{
		const route = "POST /forgot-password"

		type passwordReset struct {
			Email email.Address
		}

		h := newInputHandler(s, func(ctx context.Context, reset passwordReset) error {
			// Need to adapt because RequestPasswordReset only accepts an email address, not a struct.
			deps.AuthService.RequestPasswordReset(ctx, reset.Email)
			return nil
		})
		h.onSuccess(func(r result[passwordReset, struct{}]) error {
			r.sess.AddFlash("Check your inbox for instructions to reset your password.")
			return s.redirect(r.shared, "/forgot-password")
		})
		h.onFail(func(sh shared, err error) {
			err = s.formFailed(sh, "forgot-password", err)
			if err != nil {
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}

	// Reset password endpoints
	{
		const route = "GET /password-resets"
		h := newHandler(s, func(_ context.Context, req auth.PasswordResetRequest) (auth.PasswordResetRequest, error) {
			// this target function ensures the input is validated before it's forwarded to the view.
			return req, nil
		})
		h.onSuccess(func(r result[auth.PasswordResetRequest, auth.PasswordResetRequest]) error {
			return s.writeView(r.w, r.r, http.StatusOK, "reset-password", r.out)
		})

		s.publicOnly(route, h)
	}
	{
		const route = "POST /password-resets"
		h := newInputHandler(s, deps.AuthService.ResetPassword)
		h.onSuccess(func(r result[auth.NewPassword, struct{}]) error {
			r.sess.AddFlash("Your password was reset, login with your new password below.")
			return s.redirect(r.shared, "/login")
		})
		h.onFail(func(sh shared, err error) {
			if errors.Is(err, errorz.ErrNotFound) {
				err = s.formMessage(sh, "reset-password", http.StatusBadRequest, "This link is invalid or has expired.")
			} else {
				err = s.formFailed(sh, "reset-password", err)
			}

			if err != nil {
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}

	// Dashboard endpoints
	{
		const route = "GET /dashboard"
		h := newHandler(s, deps.AuthService.FindUser)
		h.request(func(sh shared) (uuid.UUID, error) {
			userID, _ := sh.sess.UserID()
			return userID, nil
		})
		h.onSuccess(func(r result[uuid.UUID, auth.User]) error {
			if !r.out.IsVerified() {
				return s.redirect(r.shared, "/verify-email")
			}

			return s.writeView(r.w, r.r, http.StatusOK, "dashboard", r.out)
		})

		s.loggedIn(route, h)
	}

	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(s.deps.DistFS)))

	// Wrap the mux with global middlewares.
	csrfMW := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.CookieName(csrfTokenCookieName),
		csrf.FieldName(csrfTokenField),
		csrf.Path("/"),
		csrf.Secure(cfg.SecureCookie),
	)

	middlewares := []func(http.Handler) http.Handler{
		csrfMW,
		sessionMiddleware(s),
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// formFailed re-renders a form with status 400 when err is invalid input,
// other errors are returned.
func (s *Server) formFailed(sh shared, name string, err error) error {
	var invalidInput errorz.InvalidInput
	if !errors.As(err, &invalidInput) {
		return err
	}

	vd, err := s.prepViewData(sh.r, nil)
	if err != nil {
		return err
	}

	vd.Message = "Please correct the errors below."
	return s.writeViewData(sh.w, sh.r, http.StatusBadRequest, name, vd.withInputErrors(invalidInput))
}

func (s *Server) formMessage(sh shared, name string, status int, msg string) error {
	vd, err := s.prepViewData(sh.r, nil)
	if err != nil {
		return err
	}

	vd.Message = msg
	return s.writeViewData(sh.w, sh.r, status, name, vd)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errorz.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var invalidInput errorz.InvalidInput
	if errors.As(err, &invalidInput) {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	s.deps.Logger.Error("internal server error", "url", r.URL.String(), "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
