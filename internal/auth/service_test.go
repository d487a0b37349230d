package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/auth/db"
	"github.com/inkpost/inkpost/internal/db/testdb"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/errorz"
	"github.com/inkpost/inkpost/internal/errorz/testerr"
	"github.com/inkpost/inkpost/internal/krypto"
	"github.com/inkpost/inkpost/internal/ratelimit"
	"github.com/inkpost/inkpost/internal/verification"
	"golang.org/x/crypto/bcrypt"
)

func Test_Service_RegisterUser(t *testing.T) {
	t.Run("ok, register user", func(t *testing.T) {
		st := newServiceTest(t)

		nu := testNewUser()
		reg, err := st.svc.RegisterUser(context.Background(), nu)
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		// Wait for service goroutine to finish sending the code.
		st.svc.Wait()
		st.errList.assertNoError(t)

		emails := st.emailer.sent()
		if len(emails) != 1 || emails[0].recipient != nu.Email || emails[0].template != verification.CodeEmailTemplate {
			t.Fatalf("expected 1 code email to %s, got %#v", nu.Email, emails)
		}

		data, ok := emails[0].data.(verification.CodeEmail)
		if !ok {
			t.Fatalf("unexpected data type: %T", emails[0].data)
		}

		if data.Name != "info" || data.ExpiresInMinutes != 5 {
			t.Errorf("unexpected email data %#v", data)
		}

		rec, err := st.store.store.FindRecord(context.Background(), reg.UserID)
		if err != nil {
			t.Fatalf("failed to find record: %v", err)
		}

		if rec.IsVerified() || !rec.HasActiveCode() {
			t.Fatalf("expected an unverified user with an active code, got %#v", rec)
		}

		if !data.Code.Match(*rec.CodeHash) {
			t.Errorf("emailed code does not match stored hash")
		}

		if rec.SessionHash == nil || !rec.SessionHash.Match(reg.Issued.SessionToken) {
			t.Errorf("session token does not match stored hash")
		}

		if !reg.Issued.SessionExpiresAt.Equal(*rec.SessionExpiresAt) {
			t.Errorf("got session expiry %v, want %v", reg.Issued.SessionExpiresAt, *rec.SessionExpiresAt)
		}
	})

	t.Run("fail, re-register unverified user", func(t *testing.T) {
		st := newServiceTest(t)

		first := st.registerUser()

		other := testNewUser()
		other.Password = must(auth.ParsePassword("someoneElsesPassword1"))

		for i := 0; i < 3; i++ {
			_, err := st.svc.RegisterUser(context.Background(), other)
			if !errors.Is(err, auth.ErrDuplicateUser) {
				t.Fatalf("expected %v, got %v (via errors.Is)", auth.ErrDuplicateUser, err)
			}
		}

		st.svc.Wait()
		st.errList.assertNoError(t)

		if len(st.emailer.sent()) != 1 {
			t.Fatalf("expected 1 email, got %d", len(st.emailer.sent()))
		}

		// The pending account and its session are untouched.
		_, err := st.store.store.FindRecordBySession(context.Background(), first.Issued.SessionToken.Hash())
		if err != nil {
			t.Fatalf("expected first session to resolve, got %v", err)
		}

		_, err = st.svc.Authenticate(context.Background(), testNewUser().Credentials)
		if err != nil {
			t.Fatalf("failed to authenticate with original password: %v", err)
		}

		_, err = st.svc.Authenticate(context.Background(), other.Credentials)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})

	t.Run("fail, re-register verified user", func(t *testing.T) {
		st := newServiceTest(t)

		reg := st.registerUser()
		st.verifyUser(reg)

		_, err := st.svc.RegisterUser(context.Background(), testNewUser())
		if !errors.Is(err, auth.ErrDuplicateUser) {
			t.Fatalf("expected %v, got %v (via errors.Is)", auth.ErrDuplicateUser, err)
		}

		st.svc.Wait()
		st.errList.assertNoError(t)
	})

	for _, tracker := range testerr.NewFailingDeps(testerr.Err, 5) {
		t.Run("fail, store fails", func(t *testing.T) {
			st := newServiceTest(t)
			st.store.tracker = &tracker

			_, err := st.svc.RegisterUser(context.Background(), testNewUser())
			if !errors.Is(err, testerr.Err) {
				t.Fatalf("expected %v, got %v (via errors.Is)", testerr.Err, err)
			}

			st.svc.Wait()
			st.errList.assertNoError(t)

			if len(st.emailer.sent()) != 0 {
				t.Fatalf("expected 0 emails, got %d", len(st.emailer.sent()))
			}
		})
	}

	t.Run("fail async, emailer fails", func(t *testing.T) {
		st := newServiceTest(t)
		st.emailer.testErr = testerr.Err

		_, err := st.svc.RegisterUser(context.Background(), testNewUser())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		st.svc.Wait()

		st.errList.assertErrorIs(t, testerr.Err)
		st.errList.assertErrorIs(t, verification.ErrEmailDispatch)
	})
}

func Test_Service_Authenticate(t *testing.T) {
	t.Run("ok, right credentials", func(t *testing.T) {
		st := newServiceTest(t)
		reg := st.registerUser()
		st.verifyUser(reg)

		user, err := st.svc.Authenticate(context.Background(), testNewUser().Credentials)
		if err != nil {
			t.Fatalf("failed to authenticate: %v", err)
		}

		if user.ID != reg.UserID || !user.IsVerified() {
			t.Fatalf("unexpected user %#v", user)
		}
	})

	t.Run("ok, unverified user", func(t *testing.T) {
		st := newServiceTest(t)
		reg := st.registerUser()

		user, err := st.svc.Authenticate(context.Background(), testNewUser().Credentials)
		if err != nil {
			t.Fatalf("failed to authenticate: %v", err)
		}

		if user.ID != reg.UserID || user.IsVerified() {
			t.Fatalf("unexpected user %#v", user)
		}
	})

	failCases := map[string]func(c *auth.Credentials){
		"fail, wrong password": func(c *auth.Credentials) {
			c.Password = must(auth.ParsePassword("wrongPassword"))
		},
		"fail, non-existant user": func(c *auth.Credentials) {
			c.Email = must(email.ParseAddress("jacob@example.com"))
		},
	}

	for name, modFunc := range failCases {
		t.Run(name, func(t *testing.T) {
			st := newServiceTest(t)
			st.registerUser()

			c := testNewUser().Credentials
			modFunc(&c)

			_, err := st.svc.Authenticate(context.Background(), c)
			if !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
			}
		})
	}

	t.Run("fail, store fails", func(t *testing.T) {
		st := newServiceTest(t)
		st.registerUser()

		failingDeps := testerr.NewFailingDeps(testerr.Err, 1)
		st.store.tracker = &failingDeps[0]

		_, err := st.svc.Authenticate(context.Background(), testNewUser().Credentials)
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", testerr.Err, err)
		}
	})
}

func Test_Service_FindUser(t *testing.T) {
	st := newServiceTest(t)
	reg := st.registerUser()

	user, err := st.svc.FindUser(context.Background(), reg.UserID)
	if err != nil {
		t.Fatalf("failed to find user: %v", err)
	}

	if user.Email != testNewUser().Email || user.Name != "info" {
		t.Errorf("unexpected user %#v", user)
	}

	_, err = st.svc.FindUser(context.Background(), uuid.New())
	if !errors.Is(err, errorz.ErrNotFound) {
		t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
	}
}

func Test_Service_ResetPassword(t *testing.T) {
	newPwd := must(auth.ParsePassword("anotherStrongPassword2"))

	t.Run("ok, reset password", func(t *testing.T) {
		st := newServiceTest(t)
		st.verifyUser(st.registerUser())

		req := st.requestReset()

		err := st.svc.ResetPassword(context.Background(), auth.NewPassword{
			ID:       req.ID,
			Token:    req.Token,
			Password: newPwd,
		})
		if err != nil {
			t.Fatalf("failed to reset password: %v", err)
		}

		_, err = st.svc.Authenticate(context.Background(), auth.Credentials{
			Email:    testNewUser().Email,
			Password: newPwd,
		})
		if err != nil {
			t.Fatalf("failed to authenticate with new password: %v", err)
		}

		_, err = st.svc.Authenticate(context.Background(), testNewUser().Credentials)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected old password to fail, got %v", err)
		}
	})

	t.Run("ok, no email for unverified user", func(t *testing.T) {
		st := newServiceTest(t)
		st.registerUser()

		st.svc.RequestPasswordReset(context.Background(), testNewUser().Email)
		st.svc.Wait()

		st.errList.assertErrorIs(t, errorz.ErrNotFound)

		if len(st.emailer.sent()) != 1 {
			t.Fatalf("expected only the code email, got %d emails", len(st.emailer.sent()))
		}
	})

	failCases := map[string]func(st *svcTest, np *auth.NewPassword){
		"fail, non-matching token": func(_ *svcTest, np *auth.NewPassword) {
			np.Token = must(krypto.ParseToken("0102030405060708091011121314151617181920212223242526272829303132"))
		},
		"fail, non-existant token": func(_ *svcTest, np *auth.NewPassword) {
			np.ID = uuid.New()
		},
		"fail, token already consumed": func(st *svcTest, np *auth.NewPassword) {
			err := st.svc.ResetPassword(context.Background(), *np)
			if err != nil {
				st.t.Fatalf("failed to reset password: %v", err)
			}
		},
		"fail, expired token": func(st *svcTest, _ *auth.NewPassword) {
			// TokenExpiry is set to 1 hour.
			st.svc.NowFunc = func() time.Time {
				return time.Now().Add(time.Hour + time.Second)
			}
		},
	}

	for name, modFunc := range failCases {
		t.Run(name, func(t *testing.T) {
			st := newServiceTest(t)
			st.verifyUser(st.registerUser())

			req := st.requestReset()
			np := auth.NewPassword{
				ID:       req.ID,
				Token:    req.Token,
				Password: newPwd,
			}

			modFunc(st, &np)

			err := st.svc.ResetPassword(context.Background(), np)
			if !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
			}
		})
	}

	for _, tracker := range testerr.NewFailingDeps(testerr.Err, 7) {
		t.Run("fail, store fails", func(t *testing.T) {
			st := newServiceTest(t)
			st.verifyUser(st.registerUser())
			req := st.requestReset()

			st.store.tracker = &tracker

			err := st.svc.ResetPassword(context.Background(), auth.NewPassword{
				ID:       req.ID,
				Token:    req.Token,
				Password: newPwd,
			})
			if !errors.Is(err, testerr.Err) {
				t.Fatalf("expected %v, got %v (via errors.Is)", testerr.Err, err)
			}
		})
	}
}

type svcTest struct {
	t        *testing.T
	svc      *auth.Service
	verifier *verification.Service
	store    *testStore
	emailer  *testEmailer
	errList  *errList
}

func newServiceTest(t *testing.T) *svcTest {
	testDB := testdb.RunWhile(t)
	realStore := db.New(testDB, testDB)

	test := &svcTest{
		t: t,
		store: &testStore{
			store:   realStore,
			tracker: &testerr.Calltracker{}, // empty call trackers never fail.
		},
		errList: &errList{
			mutex: &sync.Mutex{},
			errs:  make([]error, 0),
		},
		emailer: &testEmailer{mutex: &sync.Mutex{}},
	}

	vcfg := verification.DefaultConfig()
	vcfg.CodeHashCost = bcrypt.MinCost

	limiter := ratelimit.NewEmailVerificationLimiter(ratelimit.NewMemoryCounter(), ratelimit.DefaultEmailVerificationConfig())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier, err := verification.NewService(realStore, test.emailer, limiter, logger, vcfg)
	if err != nil {
		t.Fatalf("failed to create verification service: %v", err)
	}

	cfg := auth.ServiceConfig{
		WorkerTimeout: time.Second,
		TokenExpiry:   time.Hour,
	}

	svc, err := auth.NewService(test.store, test.emailer, verifier, test.errList.AppendErr, cfg)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	test.svc = svc
	test.verifier = verifier

	return test
}

func testNewUser() auth.NewUser {
	return auth.NewUser{
		Credentials: auth.Credentials{
			Email:    must(email.ParseAddress("info@example.com")),
			Password: must(auth.ParsePassword("reallyStrongPassword1")),
		},
	}
}

func (st *svcTest) registerUser() auth.Registration {
	reg, err := st.svc.RegisterUser(context.Background(), testNewUser())
	if err != nil {
		st.t.Fatalf("failed to register user: %v", err)
	}

	// wait for the service goroutine to send the code.
	st.svc.Wait()
	st.errList.assertNoError(st.t)

	return reg
}

// verifyUser verifies the user with the last emailed code.
func (st *svcTest) verifyUser(reg auth.Registration) {
	emails := st.emailer.sent()
	data, ok := emails[len(emails)-1].data.(verification.CodeEmail)
	if !ok {
		st.t.Fatalf("unexpected data type: %T", emails[len(emails)-1].data)
	}

	actor, err := st.verifier.Resolve(context.Background(), uuid.Nil, &reg.Issued.SessionToken)
	if err != nil {
		st.t.Fatalf("failed to resolve actor: %v", err)
	}

	err = st.verifier.Verify(context.Background(), actor, string(data.Code))
	if err != nil {
		st.t.Fatalf("failed to verify: %v", err)
	}
}

func (st *svcTest) requestReset() auth.PasswordResetRequest {
	st.svc.RequestPasswordReset(context.Background(), testNewUser().Email)
	st.svc.Wait()
	st.errList.assertNoError(st.t)

	emails := st.emailer.sent()
	data, ok := emails[len(emails)-1].data.(auth.PasswordResetEmail)
	if !ok {
		st.t.Fatalf("unexpected data type: %T", emails[len(emails)-1].data)
	}

	return data.PasswordResetRequest
}

type errList struct {
	mutex *sync.Mutex
	errs  []error
}

func (e *errList) AppendErr(err error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.errs = append(e.errs, err)
}

func (e *errList) assertNoError(t *testing.T) {
	t.Helper()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.errs) > 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}
}

func (e *errList) assertErrorIs(t *testing.T, err error) {
	t.Helper()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.errs) != 1 || !errors.Is(e.errs[0], err) {
		t.Fatalf("expected error %v, got %v via errors.Is()", err, e.errs)
	}
}

// testStore wraps a real store but uses a testerr.Calltracker to
// possibly fail on certain method calls.
type testStore struct {
	store   *db.Store
	tracker *testerr.Calltracker
}

func (f *testStore) BeginTx(ctx context.Context) (auth.Tx, error) {
	return testerr.MaybeFail(f.tracker, func() (auth.Tx, error) {
		realTx, err := f.store.BeginTx(ctx)
		return &testTx{
			store: f,
			tx:    realTx,
		}, err
	})
}

func (f *testStore) FindUsers(ctx context.Context, filter auth.UserFilter) ([]auth.User, error) {
	return testerr.MaybeFail(f.tracker, func() ([]auth.User, error) {
		return f.store.FindUsers(ctx, filter)
	})
}

type testTx struct {
	store *testStore
	tx    auth.Tx
}

func (tx *testTx) Commit() error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.Commit()
	})
}

func (tx *testTx) Rollback() error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.Rollback()
	})
}

func (tx *testTx) CreateUser(u auth.User) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.CreateUser(u)
	})
}

func (tx *testTx) UpdateUser(u auth.User) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.UpdateUser(u)
	})
}

func (tx *testTx) FindUsers(filter auth.UserFilter) ([]auth.User, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]auth.User, error) {
		return tx.tx.FindUsers(filter)
	})
}

func (tx *testTx) SaveVerificationState(userID uuid.UUID, s verification.State) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.SaveVerificationState(userID, s)
	})
}

func (tx *testTx) CreateEmailToken(t auth.EmailToken) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.CreateEmailToken(t)
	})
}

func (tx *testTx) UpdateEmailToken(t auth.EmailToken) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.UpdateEmailToken(t)
	})
}

func (tx *testTx) FindEmailTokens(filter auth.EmailTokenFilter) ([]auth.EmailToken, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]auth.EmailToken, error) {
		return tx.tx.FindEmailTokens(filter)
	})
}

type sentEmail struct {
	template  string
	recipient email.Address
	data      any
}

type testEmailer struct {
	mutex   *sync.Mutex
	emails  []sentEmail
	testErr error
}

func (e *testEmailer) Send(_ context.Context, template string, to email.Address, data any) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.testErr != nil {
		return e.testErr
	}

	e.emails = append(e.emails, sentEmail{
		template:  template,
		recipient: to,
		data:      data,
	})

	return nil
}

func (e *testEmailer) sent() []sentEmail {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	out := make([]sentEmail, len(e.emails))
	copy(out, e.emails)
	return out
}
