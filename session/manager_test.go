package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/session"
	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/token/memstore"
	"github.com/jrsteele09/taskboard/users"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu          sync.Mutex
	signupFn    func(ctx context.Context, form session.SignupForm) (*session.Grant, error)
	obtainFn    func(ctx context.Context, form session.LoginForm) (*session.Grant, error)
	revokeFn    func(ctx context.Context, access, refresh string) error
	signupCalls int
	obtainCalls int
	revokeCalls int
	revoked     []string
}

func (f *fakeAuth) Signup(ctx context.Context, form session.SignupForm) (*session.Grant, error) {
	f.mu.Lock()
	f.signupCalls++
	f.mu.Unlock()
	return f.signupFn(ctx, form)
}

func (f *fakeAuth) ObtainToken(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
	f.mu.Lock()
	f.obtainCalls++
	f.mu.Unlock()
	return f.obtainFn(ctx, form)
}

func (f *fakeAuth) Revoke(ctx context.Context, access, refresh string) error {
	f.mu.Lock()
	f.revokeCalls++
	f.revoked = append(f.revoked, refresh)
	f.mu.Unlock()
	if f.revokeFn == nil {
		return nil
	}
	return f.revokeFn(ctx, access, refresh)
}

func (f *fakeAuth) calls() (signup, obtain, revoke int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signupCalls, f.obtainCalls, f.revokeCalls
}

type testFixture struct {
	store    *memstore.Store
	auth     *fakeAuth
	manager  *session.Manager
	snapsMu  sync.Mutex
	snaps    []session.Snapshot
	employee *users.User
}

func setupTestFixture(t *testing.T, seed token.Record) *testFixture {
	t.Helper()
	f := &testFixture{
		store:    memstore.New(seed),
		employee: &users.User{ID: 1, Username: "amy", Email: "a@x.com", Role: users.RoleEmployee},
	}
	f.auth = &fakeAuth{
		obtainFn: func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
			return &session.Grant{User: f.employee, Tokens: token.Pair{Access: "T1", Refresh: "R1"}}, nil
		},
		signupFn: func(ctx context.Context, form session.SignupForm) (*session.Grant, error) {
			return &session.Grant{
				User:   &users.User{ID: 2, Username: form.Username, Email: form.Email, Role: form.Role},
				Tokens: token.Pair{Access: "S1", Refresh: "SR1"},
			}, nil
		},
	}
	f.manager = session.NewManager(f.store, f.auth)
	f.manager.Subscribe(func(s session.Snapshot) {
		f.snapsMu.Lock()
		defer f.snapsMu.Unlock()
		f.snaps = append(f.snaps, s)
	})
	return f
}

func (f *testFixture) requireInvariant(t *testing.T) {
	t.Helper()
	f.snapsMu.Lock()
	defer f.snapsMu.Unlock()
	for _, s := range append(f.snaps, f.manager.Snapshot()) {
		require.Equal(t, s.AccessToken != "", s.IsAuthenticated, "snapshot %+v", s)
	}
}

func (f *testFixture) statuses() []session.Status {
	f.snapsMu.Lock()
	defer f.snapsMu.Unlock()
	out := make([]session.Status, 0, len(f.snaps))
	for _, s := range f.snaps {
		out = append(out, s.Status)
	}
	return out
}

func (f *testFixture) requireStored(t *testing.T, access, refresh string) {
	t.Helper()
	rec, err := f.store.Load()
	require.NoError(t, err)
	require.Equal(t, access, rec.AccessToken)
	require.Equal(t, refresh, rec.RefreshToken)
}

var validLogin = session.LoginForm{Email: "a@x.com", Password: "secret12"}

func TestLogin_Succeeds(t *testing.T) {
	f := setupTestFixture(t, token.Record{})

	u, err := f.manager.Login(context.Background(), validLogin)
	require.NoError(t, err)
	require.Equal(t, users.RoleEmployee, u.Role)

	snap := f.manager.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, "T1", snap.AccessToken)
	require.Equal(t, "R1", snap.RefreshToken)
	require.Equal(t, users.RoleEmployee, snap.UserRole())
	require.Equal(t, session.StatusSucceeded, snap.Status)
	require.Nil(t, snap.Err)

	// Round trip: persisted pair equals the in-memory pair.
	f.requireStored(t, snap.AccessToken, snap.RefreshToken)
	rec, _ := f.store.Load()
	require.Equal(t, 1, rec.User.ID)

	require.Equal(t, []session.Status{session.StatusPending, session.StatusSucceeded}, f.statuses())
	f.requireInvariant(t)
}

func TestLogin_FailureClearsStaleTokens(t *testing.T) {
	f := setupTestFixture(t, token.Record{AccessToken: "OLD", RefreshToken: "OLDR", User: &users.User{ID: 9, Role: users.RoleManager}})
	require.True(t, f.manager.Snapshot().IsAuthenticated)

	f.auth.obtainFn = func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
		return nil, apierror.AuthRejected(401, "No active account found with the given credentials", nil)
	}

	_, err := f.manager.Login(context.Background(), validLogin)
	require.ErrorIs(t, err, apierror.ErrAuthRejected)

	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Empty(t, snap.AccessToken)
	require.Empty(t, snap.RefreshToken)
	require.Nil(t, snap.User)
	require.Equal(t, session.StatusFailed, snap.Status)
	require.Equal(t, "No active account found with the given credentials", snap.Err.Message)
	f.requireStored(t, "", "")
	f.requireInvariant(t)
}

func TestLogin_TransportErrorBecomesNetworkKind(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	f.auth.obtainFn = func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
		return nil, errors.New("dial tcp 127.0.0.1:8000: connection refused")
	}

	_, err := f.manager.Login(context.Background(), validLogin)
	require.ErrorIs(t, err, apierror.ErrNetwork)
	require.Equal(t, apierror.KindNetwork, f.manager.Snapshot().Err.Kind)
}

func TestLogin_RejectsUnknownRoleInResponse(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	f.auth.obtainFn = func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
		return &session.Grant{User: &users.User{ID: 1, Role: "boss"}, Tokens: token.Pair{Access: "T", Refresh: "R"}}, nil
	}

	_, err := f.manager.Login(context.Background(), validLogin)
	require.ErrorIs(t, err, apierror.ErrServer)
	require.False(t, f.manager.Snapshot().IsAuthenticated)
	f.requireStored(t, "", "")
}

func TestLogin_ValidationIsLocal(t *testing.T) {
	f := setupTestFixture(t, token.Record{})

	_, err := f.manager.Login(context.Background(), session.LoginForm{Email: "not-an-email"})
	var aerr *apierror.Error
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, apierror.KindValidation, aerr.Kind)
	require.NotEmpty(t, aerr.Field("email"))
	require.NotEmpty(t, aerr.Field("password"))

	_, obtain, _ := f.auth.calls()
	require.Zero(t, obtain)
	require.Empty(t, f.statuses())
	require.Equal(t, session.StatusIdle, f.manager.Snapshot().Status)
}

func TestLogin_SecondLoginWhileInFlight(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	entered := make(chan struct{})
	release := make(chan struct{})
	f.auth.obtainFn = func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
		close(entered)
		<-release
		return &session.Grant{User: f.employee, Tokens: token.Pair{Access: "T1", Refresh: "R1"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Login(context.Background(), validLogin)
		done <- err
	}()
	<-entered

	require.Equal(t, session.StatusPending, f.manager.Snapshot().Status)
	_, err := f.manager.Login(context.Background(), validLogin)
	require.ErrorIs(t, err, apierror.ErrOperationInFlight)

	close(release)
	require.NoError(t, <-done)
	require.True(t, f.manager.Snapshot().IsAuthenticated)
	_, obtain, _ := f.auth.calls()
	require.Equal(t, 1, obtain)
}

func TestLogin_StoreFailureConverges(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	f.store.FailSaves(errors.New("disk full"))

	_, err := f.manager.Login(context.Background(), validLogin)
	require.ErrorIs(t, err, apierror.ErrStorage)

	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Equal(t, session.StatusFailed, snap.Status)
	f.requireStored(t, "", "")
	f.requireInvariant(t)
}

func TestLogin_PanicStillClears(t *testing.T) {
	f := setupTestFixture(t, token.Record{AccessToken: "OLD", RefreshToken: "OLDR"})
	f.auth.obtainFn = func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
		panic("boom")
	}

	require.PanicsWithValue(t, "boom", func() {
		_, _ = f.manager.Login(context.Background(), validLogin)
	})

	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Equal(t, session.StatusFailed, snap.Status)
	f.requireStored(t, "", "")

	// The operation slot was released.
	f.auth.obtainFn = func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
		return &session.Grant{User: f.employee, Tokens: token.Pair{Access: "T1", Refresh: "R1"}}, nil
	}
	_, err := f.manager.Login(context.Background(), validLogin)
	require.NoError(t, err)
}

var validSignup = session.SignupForm{
	Email:     "new@x.com",
	Username:  "newbie",
	Password:  "secret12",
	Password2: "secret12",
	Role:      users.RoleManager,
}

func TestSignup_MismatchedPasswordsRejectedLocally(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	form := validSignup
	form.Password2 = "secret13"

	_, err := f.manager.Signup(context.Background(), form)
	require.ErrorIs(t, err, apierror.ErrValidation)
	var aerr *apierror.Error
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, "Passwords do not match.", aerr.Field("password2"))
	require.Len(t, aerr.Fields, 1)

	signup, obtain, _ := f.auth.calls()
	require.Zero(t, signup+obtain)
	require.Empty(t, f.statuses())
}

func TestSignup_FieldValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(f *session.SignupForm)
		field string
	}{
		{"email", func(f *session.SignupForm) { f.Email = "nope" }, "email"},
		{"short username", func(f *session.SignupForm) { f.Username = "ab" }, "username"},
		{"short password", func(f *session.SignupForm) { f.Password, f.Password2 = "short", "short" }, "password"},
		{"missing role", func(f *session.SignupForm) { f.Role = "" }, "role"},
		{"unknown role", func(f *session.SignupForm) { f.Role = "boss" }, "role"},
		{"large avatar", func(f *session.SignupForm) {
			f.ProfilePic = &session.Upload{Filename: "a.png", Data: make([]byte, session.MaxProfilePicBytes+1)}
		}, "profile_pic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validSignup
			tt.edit(&form)
			var aerr *apierror.Error
			require.True(t, errors.As(form.Validate(), &aerr))
			require.NotEmpty(t, aerr.Field(tt.field), "fields: %v", aerr.Fields)
		})
	}
	require.NoError(t, validSignup.Validate())
}

func TestSignup_Succeeds(t *testing.T) {
	f := setupTestFixture(t, token.Record{})

	u, err := f.manager.Signup(context.Background(), validSignup)
	require.NoError(t, err)
	require.Equal(t, users.RoleManager, u.Role)

	snap := f.manager.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, "S1", snap.AccessToken)
	require.Equal(t, session.StatusSucceeded, snap.Status)
	f.requireStored(t, "S1", "SR1")
	f.requireInvariant(t)
}

func TestSignup_WithoutTokensCompletesWithLogin(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	f.auth.signupFn = func(ctx context.Context, form session.SignupForm) (*session.Grant, error) {
		return &session.Grant{User: &users.User{ID: 2, Username: form.Username, Email: form.Email, Role: form.Role}}, nil
	}
	var loginEmail string
	f.auth.obtainFn = func(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
		loginEmail = form.Email
		return &session.Grant{Tokens: token.Pair{Access: "T9", Refresh: "R9"}}, nil
	}

	u, err := f.manager.Signup(context.Background(), validSignup)
	require.NoError(t, err)
	require.Equal(t, 2, u.ID)
	require.Equal(t, validSignup.Email, loginEmail)
	require.True(t, f.manager.Snapshot().IsAuthenticated)
	f.requireStored(t, "T9", "R9")
}

func TestSignup_FailureLeavesPriorTokens(t *testing.T) {
	prior := token.Record{AccessToken: "OLD", RefreshToken: "OLDR", User: &users.User{ID: 5, Role: users.RoleEmployee}}
	f := setupTestFixture(t, prior)
	f.auth.signupFn = func(ctx context.Context, form session.SignupForm) (*session.Grant, error) {
		return nil, apierror.AuthRejected(400, "", map[string][]string{"email": {"user with this email already exists."}})
	}

	_, err := f.manager.Signup(context.Background(), validSignup)
	require.ErrorIs(t, err, apierror.ErrAuthRejected)

	snap := f.manager.Snapshot()
	require.Equal(t, session.StatusFailed, snap.Status)
	require.Equal(t, "OLD", snap.AccessToken)
	require.Equal(t, "user with this email already exists.", snap.Err.Field("email"))
	f.requireStored(t, "OLD", "OLDR")
}

func TestSignup_StoreFailureRollsBack(t *testing.T) {
	prior := token.Record{AccessToken: "OLD", RefreshToken: "OLDR", User: &users.User{ID: 5, Role: users.RoleEmployee}}
	f := setupTestFixture(t, prior)
	f.store.FailSaves(errors.New("read-only"))

	_, err := f.manager.Signup(context.Background(), validSignup)
	require.ErrorIs(t, err, apierror.ErrStorage)

	snap := f.manager.Snapshot()
	require.Equal(t, "OLD", snap.AccessToken)
	require.Equal(t, "OLDR", snap.RefreshToken)
	require.True(t, snap.IsAuthenticated)
	f.requireStored(t, "OLD", "OLDR")
}

func TestLogout_ClearsEverythingAndIsIdempotent(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	_, err := f.manager.Login(context.Background(), validLogin)
	require.NoError(t, err)

	require.NoError(t, f.manager.Logout(context.Background()))
	first := f.manager.Snapshot()
	require.Nil(t, first.User)
	require.Empty(t, first.AccessToken)
	require.Empty(t, first.RefreshToken)
	require.False(t, first.IsAuthenticated)
	f.requireStored(t, "", "")

	require.NoError(t, f.manager.Logout(context.Background()))
	require.Equal(t, first, f.manager.Snapshot())

	_, _, revoke := f.auth.calls()
	require.Equal(t, 1, revoke)
	require.Equal(t, []string{"R1"}, f.auth.revoked)
	f.requireInvariant(t)
}

func TestLogout_RevocationFailureIsNotSurfaced(t *testing.T) {
	f := setupTestFixture(t, token.Record{AccessToken: "T1", RefreshToken: "R1"})
	f.auth.revokeFn = func(ctx context.Context, access, refresh string) error {
		return apierror.Network(errors.New("timeout"))
	}

	require.NoError(t, f.manager.Logout(context.Background()))
	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Nil(t, snap.Err)
	require.Equal(t, session.StatusSucceeded, snap.Status)
	f.requireStored(t, "", "")
}

func TestLogout_StoreFailureStillClearsMemory(t *testing.T) {
	f := setupTestFixture(t, token.Record{AccessToken: "T1", RefreshToken: "R1"})
	f.store.FailClears(errors.New("locked"))

	err := f.manager.Logout(context.Background())
	require.ErrorIs(t, err, apierror.ErrStorage)
	require.False(t, f.manager.Snapshot().IsAuthenticated)
}

func TestNewManager_Hydrates(t *testing.T) {
	t.Run("from record", func(t *testing.T) {
		f := setupTestFixture(t, token.Record{AccessToken: "T1", RefreshToken: "R1", User: &users.User{ID: 3, Role: users.RoleAdmin}})
		snap := f.manager.Snapshot()
		require.True(t, snap.IsAuthenticated)
		require.Equal(t, users.RoleAdmin, snap.UserRole())
		require.Equal(t, session.StatusIdle, snap.Status)
	})

	t.Run("identity from claims", func(t *testing.T) {
		claims := token.MapClaims(&users.User{ID: 8, Username: "max", Email: "m@x.com", Role: users.RoleManager})
		claims["exp"] = time.Now().Add(time.Hour).Unix()
		raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("k"))
		require.NoError(t, err)

		f := setupTestFixture(t, token.Record{AccessToken: raw, RefreshToken: "R1"})
		snap := f.manager.Snapshot()
		require.Equal(t, 8, snap.User.ID)
		require.Equal(t, users.RoleManager, snap.UserRole())
	})

	t.Run("refresh token alone is not a session", func(t *testing.T) {
		f := setupTestFixture(t, token.Record{RefreshToken: "R1"})
		snap := f.manager.Snapshot()
		require.False(t, snap.IsAuthenticated)
		require.Empty(t, snap.RefreshToken)
		rec, err := f.store.Load()
		require.NoError(t, err)
		require.True(t, rec.Empty())
	})
}

func TestApplyRefreshedAccess(t *testing.T) {
	f := setupTestFixture(t, token.Record{AccessToken: "T1", RefreshToken: "R1", User: &users.User{ID: 1, Role: users.RoleEmployee}})

	require.NoError(t, f.manager.ApplyRefreshedAccess("R1", token.Pair{Access: "T2"}))
	require.Equal(t, "T2", f.manager.AccessToken())
	f.requireStored(t, "T2", "R1")

	require.NoError(t, f.manager.ApplyRefreshedAccess("R1", token.Pair{Access: "T3", Refresh: "R2"}))
	require.Equal(t, "R2", f.manager.RefreshToken())
	f.requireStored(t, "T3", "R2")

	err := f.manager.ApplyRefreshedAccess("R1", token.Pair{Access: "T4"})
	require.ErrorIs(t, err, apierror.ErrSessionChanged)
	require.Equal(t, "T3", f.manager.AccessToken())

	f.store.FailSaves(errors.New("disk full"))
	err = f.manager.ApplyRefreshedAccess("R2", token.Pair{Access: "T5"})
	require.ErrorIs(t, err, apierror.ErrStorage)
	require.Equal(t, "T3", f.manager.AccessToken())
	f.requireInvariant(t)
}

func TestTeardown(t *testing.T) {
	f := setupTestFixture(t, token.Record{AccessToken: "T1", RefreshToken: "R1", User: &users.User{ID: 1, Role: users.RoleAdmin}})

	f.manager.Teardown(apierror.RefreshFailed(errors.New("401")))
	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Nil(t, snap.User)
	require.Equal(t, apierror.KindRefreshFailed, snap.Err.Kind)
	f.requireStored(t, "", "")

	_, _, revoke := f.auth.calls()
	require.Zero(t, revoke)
	f.requireInvariant(t)
}

func TestTeardownIfHolding(t *testing.T) {
	f := setupTestFixture(t, token.Record{AccessToken: "T1", RefreshToken: "R1", User: &users.User{ID: 1, Role: users.RoleManager}})
	reason := apierror.RefreshFailed(errors.New("401"))

	tests := []struct {
		name     string
		used     string
		expected bool
	}{
		{name: "older refresh token", used: "R0", expected: false},
		{name: "empty refresh token", used: "", expected: false},
		{name: "current refresh token", used: "R1", expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, f.manager.TeardownIfHolding(tt.used, reason))
			require.Equal(t, !tt.expected, f.manager.Snapshot().IsAuthenticated)
		})
	}
	f.requireStored(t, "", "")
	f.requireInvariant(t)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := setupTestFixture(t, token.Record{})
	count := 0
	unsubscribe := f.manager.Subscribe(func(session.Snapshot) { count++ })

	_, err := f.manager.Login(context.Background(), validLogin)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	unsubscribe()
	require.NoError(t, f.manager.Logout(context.Background()))
	require.Equal(t, 2, count)
}
