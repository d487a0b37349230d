package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/inkpost/inkpost/internal/verification"
)

// VerificationCookie binds a browser to a pending email verification, it holds
// the raw session token.
const VerificationCookie = "email_verification_session"

const (
	msgCodeFormat    = "Enter the 6-digit code from your email."
	msgNoActiveCode  = "No active verification code. Please request a new one."
	msgCodeExpired   = "That code has expired. Request a new one."
	msgCodeInvalid   = "Invalid code. Please try again."
	msgGenericVerify = "We could not verify your email. Please try again."
	msgCodeResent    = "A new verification code has been sent."
	msgResendFailed  = "We could not send a new code. Please try again later."
	msgVerified      = "Your email address has been verified."
)

func cooldownMessage(seconds int) string {
	return fmt.Sprintf("Please wait %ds before requesting a new code.", seconds)
}

type verifyInput struct {
	Actor verification.Actor
	Code  string
}

type resendInput struct {
	Actor    verification.Actor
	ClientIP string
}

// resendOutput carries a dispatch failure next to the issued session, the new
// state is persisted either way and the cookie needs to follow it.
type resendOutput struct {
	Issued      verification.Issued
	DispatchErr error
}

// verifyPage is the data of the verify-email view.
type verifyPage struct {
	verification.Page
	CodeTTL time.Duration
}

func (s *Server) verifyPageData(a verification.Actor) verifyPage {
	return verifyPage{
		Page:    verification.Describe(a),
		CodeTTL: s.deps.VerificationService.Config().CodeTTL,
	}
}

func (s *Server) verificationRoutes() {
	svc := s.deps.VerificationService

	{
		const route = "GET /verify-email"
		h := newHandler(s, func(_ context.Context, a verification.Actor) (verifyPage, error) {
			return s.verifyPageData(a), nil
		})
		h.request(s.resolveActor)
		h.onSuccess(func(r result[verification.Actor, verifyPage]) error {
			if r.out.Verified {
				return s.redirect(r.shared, "/registration-done")
			}

			return s.writeView(r.w, r.r, http.StatusOK, "verify-email", r.out)
		})

		s.public(route, h)
	}
	{
		const route = "POST /verify-email"
		h := newInputHandler(s, func(ctx context.Context, in verifyInput) error {
			return svc.Verify(ctx, in.Actor, in.Code)
		})
		h.request(func(sh shared) (verifyInput, error) {
			form, err := defaultReqToIn[struct{ Code string }](s, sh)
			if err != nil {
				return verifyInput{}, err
			}

			a, err := s.resolveActor(sh)
			if err != nil {
				return verifyInput{}, err
			}

			return verifyInput{Actor: a, Code: form.Code}, nil
		})
		h.onSuccess(func(r result[verifyInput, struct{}]) error {
			clearVerificationCookie(r.w, s.cfg.SecureCookie)
			r.sess.AddFlash(msgVerified)
			return s.redirect(r.shared, "/registration-done")
		})
		h.onFail(func(sh shared, err error) {
			s.verificationFailed(sh, err)
		})

		s.public(route, h)
	}
	{
		const route = "POST /verify-email/resend"
		h := newHandler(s, func(ctx context.Context, in resendInput) (resendOutput, error) {
			issued, err := svc.Resend(ctx, in.Actor, in.ClientIP)
			if errors.Is(err, verification.ErrEmailDispatch) {
				return resendOutput{Issued: issued, DispatchErr: err}, nil
			}
			if err != nil {
				return resendOutput{}, err
			}

			return resendOutput{Issued: issued}, nil
		})
		h.request(func(sh shared) (resendInput, error) {
			a, err := s.resolveActor(sh)
			if err != nil {
				return resendInput{}, err
			}

			return resendInput{Actor: a, ClientIP: clientIP(sh.r, s.cfg.TrustProxy)}, nil
		})
		h.onSuccess(func(r result[resendInput, resendOutput]) error {
			setVerificationCookie(r.w, r.out.Issued, svc.NowFunc(), s.cfg.SecureCookie)

			if r.out.DispatchErr != nil {
				return s.writeVerifyPage(r.shared, r.in.Actor, http.StatusInternalServerError, msgResendFailed)
			}

			r.sess.AddFlash(msgCodeResent)
			return s.redirect(r.shared, "/verify-email")
		})
		h.onFail(func(sh shared, err error) {
			s.verificationFailed(sh, err)
		})

		s.public(route, h)
	}

	s.public("GET /registration-done", newViewHandler(s, "registration-done"))
}

// resolveActor determines who is verifying from the login session and the
// verification cookie.
func (s *Server) resolveActor(sh shared) (verification.Actor, error) {
	userID, _ := sh.sess.UserID()
	return s.deps.VerificationService.Resolve(sh.r.Context(), userID, verificationToken(sh.r))
}

// verificationFailed writes the response for a failed verify or resend request.
// Messages never reveal whether an account exists.
func (s *Server) verificationFailed(sh shared, err error) {
	var (
		cooldown    *verification.CooldownError
		rateLimited *verification.RateLimitedError
		status      = http.StatusBadRequest
		msg         string
	)

	switch {
	case errors.Is(err, verification.ErrAlreadyVerified):
		err = s.redirect(sh, "/registration-done")
		if err != nil {
			s.handleError(sh.w, sh.r, err)
		}
		return
	case errors.Is(err, verification.ErrInvalidCodeFormat):
		msg = msgCodeFormat
	case errors.Is(err, verification.ErrNoActiveCode):
		msg = msgNoActiveCode
	case errors.Is(err, verification.ErrCodeExpired):
		msg = msgCodeExpired
	case errors.Is(err, verification.ErrCodeInvalid):
		msg = msgCodeInvalid
	case errors.Is(err, verification.ErrNoSession):
		msg = msgGenericVerify
	case errors.As(err, &cooldown):
		status = http.StatusTooManyRequests
		msg = cooldownMessage(cooldown.Seconds())
	case errors.As(err, &rateLimited):
		status = http.StatusTooManyRequests
		msg = rateLimited.Message
	default:
		s.handleError(sh.w, sh.r, err)
		return
	}

	a, err := s.resolveActor(sh)
	if err != nil {
		s.handleError(sh.w, sh.r, err)
		return
	}

	err = s.writeVerifyPage(sh, a, status, msg)
	if err != nil {
		s.handleError(sh.w, sh.r, err)
	}
}

func (s *Server) writeVerifyPage(sh shared, a verification.Actor, status int, msg string) error {
	vd, err := s.prepViewData(sh.r, s.verifyPageData(a))
	if err != nil {
		return err
	}

	vd.Message = msg
	return s.writeViewData(sh.w, sh.r, status, "verify-email", vd)
}

// verificationToken returns the token from the verification cookie, or nil if
// there is no valid one.
func verificationToken(r *http.Request) *krypto.Token {
	c, err := r.Cookie(VerificationCookie)
	if err != nil {
		return nil
	}

	tok, err := krypto.ParseToken(c.Value)
	if err != nil {
		return nil
	}

	return &tok
}

func setVerificationCookie(w http.ResponseWriter, issued verification.Issued, now time.Time, secure bool) {
	maxAge := int(issued.SessionExpiresAt.Sub(now) / time.Second)
	if maxAge <= 0 {
		clearVerificationCookie(w, secure)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     VerificationCookie,
		Value:    issued.SessionToken.String(),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearVerificationCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VerificationCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientIP returns the IP the request originates from. X-Forwarded-For is only
// considered when the server runs behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
