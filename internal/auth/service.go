// Package auth implements user registration, logging in and password resets.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/errorz"
	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/inkpost/inkpost/internal/verification"
)

var (
	ErrDuplicateUser = errors.New("duplicate user")
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// Verifier issues and sends email verification codes.
type Verifier interface {
	Issue(existing *krypto.Token) (verification.State, error)
	SendCode(ctx context.Context, rec verification.Record, st verification.State) error
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take befor they are cancelled.
	WorkerTimeout time.Duration
	// TokenExpiry is the duration a password reset token is valid.
	TokenExpiry time.Duration
}

// Service is the type that provides the main rules for
// authentication.
type Service struct {
	store      Store
	emailer    Emailer
	verifier   Verifier
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, verifier Verifier, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		verifier:       verifier,
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Registration is the result of registering a user.
type Registration struct {
	UserID uuid.UUID
	// Issued binds the registering client to the pending verification.
	Issued verification.Issued
}

// RegisterUser registers a new user and issues a verification code. It returns
// ErrDuplicateUser for any existing email address, verified or not.
//
// The code is emailed in a separate goroutine, failing to send it does not fail
// the registration. The user can request a new code from the verification page.
func (s *Service) RegisterUser(ctx context.Context, nu NewUser) (Registration, error) {
	pwdHash, err := nu.Password.Hash()
	if err != nil {
		return Registration{}, err
	}

	st, err := s.verifier.Issue(nil)
	if err != nil {
		return Registration{}, err
	}

	now := s.NowFunc().UTC()

	name := nu.Name
	if name == "" {
		name = nu.Email.LocalPart()
	}

	user := User{
		ID:           uuid.New(),
		Email:        nu.Email,
		Name:         name,
		PasswordHash: pwdHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(UserFilter{
			Emails: []email.Address{user.Email},
		})
		if txErr != nil {
			return txErr
		}

		if len(users) > 0 {
			return ErrDuplicateUser
		}

		txErr = tx.CreateUser(user)
		if txErr != nil {
			return txErr
		}

		return tx.SaveVerificationState(user.ID, st)
	})

	if err != nil {
		return Registration{}, err
	}

	rec := verification.Record{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.verifier.SendCode(wCtx, rec, st)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()

	return Registration{
		UserID: user.ID,
		Issued: verification.Issued{
			SessionToken:     st.SessionToken,
			SessionExpiresAt: st.SessionExpiresAt,
		},
	}, nil
}

// Authenticate checks if the provided credentials are valid and returns the
// matching user. It returns errorz.ErrNotFound if they are not.
//
// Users that did not verify their email address can still authenticate, callers
// decide what they can access.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (User, error) {
	users, err := s.store.FindUsers(ctx, UserFilter{
		Emails: []email.Address{c.Email},
	})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		// Even if no user is found we compare to a hash to prevent timing differences
		// that could result in user enumeration attacks.
		_ = c.Password.Match(s.comparisonHash)
		return User{}, errorz.ErrNotFound
	}

	if !c.Password.Match(users[0].PasswordHash) {
		return User{}, errorz.ErrNotFound
	}

	return users[0], nil
}

// FindUser returns the user with the given ID or errorz.ErrNotFound.
func (s *Service) FindUser(ctx context.Context, id uuid.UUID) (User, error) {
	users, err := s.store.FindUsers(ctx, UserFilter{
		IDs: []uuid.UUID{id},
	})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		return User{}, errorz.ErrNotFound
	}

	return users[0], nil
}

// RequestPasswordReset requests a password reset for the user with the provided email address.
// The main work is done in a separate goroutine and no output is returned to indicate if
// the request was successful.
func (s *Service) RequestPasswordReset(_ context.Context, addr email.Address) {
	// The actual work is done in a separate goroutine to prevent:
	// - Waiting for the email to be send might slow down sending a response.
	// - Information leakage. Timing difference between existing/non-existing
	//   user could lead to user enumeration attacks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.startPasswordReset(wCtx, addr)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()
}

func (s *Service) startPasswordReset(ctx context.Context, addr email.Address) error {
	now := s.NowFunc().UTC()

	token, err := krypto.GenerateToken()
	if err != nil {
		return err
	}

	emailToken := EmailToken{
		ID:         uuid.New(),
		TokenHash:  token.Hash(),
		UserID:     uuid.Nil, // set after the user was found.
		Email:      addr,
		Purpose:    EmailTokenPurposePasswordReset,
		CreatedAt:  now,
		ConsumedAt: nil,
	}

	var name string
	err = s.inTx(ctx, func(tx Tx) error {
		// Only verified users can reset their password.
		users, txErr := tx.FindUsers(UserFilter{
			Emails:     []email.Address{addr},
			IsVerified: ptr(true),
		})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		emailToken.UserID = users[0].ID
		name = users[0].Name

		return tx.CreateEmailToken(emailToken)
	})

	if err != nil {
		return err
	}

	// This could fail independently of the transaction. If the user has not
	// received the email, they can request a new password reset.
	return s.emailer.Send(ctx, "password-reset-request", addr, PasswordResetEmail{
		Name: name,
		PasswordResetRequest: PasswordResetRequest{
			ID:    emailToken.ID,
			Token: token,
		},
	})
}

// PasswordResetEmail is the data passed to the password reset email template.
type PasswordResetEmail struct {
	PasswordResetRequest
	Name string
}

// ResetPassword replaces the password of the user that received the email token.
// It returns errorz.ErrNotFound if the token is unknown, consumed, expired or
// does not match.
func (s *Service) ResetPassword(ctx context.Context, np NewPassword) error {
	pwdHash, err := np.Password.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		tokens, err := tx.FindEmailTokens(EmailTokenFilter{
			IDs:        []uuid.UUID{np.ID},
			Purposes:   []EmailTokenPurpose{EmailTokenPurposePasswordReset},
			IsConsumed: ptr(false),
		})
		if err != nil {
			return err
		}

		if len(tokens) != 1 {
			return errorz.ErrNotFound
		}

		token := tokens[0]
		now := s.NowFunc().UTC()

		if now.Sub(token.CreatedAt) > s.cfg.TokenExpiry {
			return errorz.ErrNotFound
		}

		if !token.TokenHash.Match(np.Token) {
			return errorz.ErrNotFound
		}

		users, err := tx.FindUsers(UserFilter{
			IDs: []uuid.UUID{token.UserID},
		})
		if err != nil {
			return err
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		users[0].PasswordHash = pwdHash
		users[0].UpdatedAt = now

		err = tx.UpdateUser(users[0])
		if err != nil {
			return err
		}

		// Consume all unconsumed reset tokens of the user.
		tokens, err = tx.FindEmailTokens(EmailTokenFilter{
			UserIDs:    []uuid.UUID{token.UserID},
			Purposes:   []EmailTokenPurpose{EmailTokenPurposePasswordReset},
			IsConsumed: ptr(false),
		})
		if err != nil {
			return err
		}

		for _, t := range tokens {
			t.ConsumedAt = ptr(now)
			err = tx.UpdateEmailToken(t)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}

func ptr[T any](v T) *T {
	return &v
}
