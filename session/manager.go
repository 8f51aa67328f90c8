package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/users"
)

type opKind string

const (
	opLogin  opKind = "login"
	opSignup opKind = "signup"
	opLogout opKind = "logout"
)

// Manager is the only writer of the session and its persisted record. Every
// mutation happens as a single transition under mu, and store writes are made
// while mu is held so memory and storage never diverge. mu is never held
// across a network call.
type Manager struct {
	store  token.Store
	auth   Authenticator
	logger zerolog.Logger

	mu       sync.Mutex
	state    Snapshot
	inFlight map[opKind]bool

	// notifyMu orders deliveries; it is taken before mu is released.
	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     []subscriber
	nextSub  int
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

type Option func(*Manager)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager builds a Manager hydrated from store. An unreadable record is
// discarded and the session starts empty.
func NewManager(store token.Store, auth Authenticator, options ...Option) *Manager {
	m := &Manager{
		store:    store,
		auth:     auth,
		logger:   zerolog.Nop(),
		inFlight: make(map[opKind]bool),
	}
	for _, opt := range options {
		opt(m)
	}
	m.hydrate()
	return m
}

func (m *Manager) hydrate() {
	rec, err := m.store.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("discarding unreadable session record")
		if err := m.store.Clear(); err != nil {
			m.logger.Error().Err(err).Msg("failed to clear session record")
		}
		rec = token.Record{}
	}

	m.state = Snapshot{Status: StatusIdle}
	if rec.AccessToken == "" {
		if !rec.Empty() {
			if err := m.store.Clear(); err != nil {
				m.logger.Error().Err(err).Msg("failed to clear partial session record")
			}
		}
		return
	}
	m.state.AccessToken = rec.AccessToken
	m.state.RefreshToken = rec.RefreshToken
	m.state.IsAuthenticated = true
	m.state.User = rec.User
	if m.state.User == nil {
		m.state.User = identityFromToken(rec.AccessToken)
	}
	if m.state.User != nil && !m.state.User.Role.Valid() {
		m.state.User = nil
	}
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn to receive every new snapshot, in transition order.
// fn must not call Login, Signup, Logout, Teardown or ApplyRefreshedAccess
// synchronously.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// unlockAndPublish must be called with mu held.
func (m *Manager) unlockAndPublish() {
	m.state.IsAuthenticated = m.state.AccessToken != ""
	snap := m.state.clone()
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	m.subsMu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.Unlock()

	for _, s := range subs {
		s.fn(snap)
	}
}

// begin marks kind in flight and publishes the pending state.
func (m *Manager) begin(kind opKind) error {
	m.mu.Lock()
	if m.inFlight[kind] {
		m.mu.Unlock()
		return errors.Wrapf(apierror.ErrOperationInFlight, "[Manager.%s]", kind)
	}
	m.inFlight[kind] = true
	m.state.Status = StatusPending
	m.state.Err = nil
	m.unlockAndPublish()
	return nil
}

// finish applies one terminal transition and releases kind.
func (m *Manager) finish(kind opKind, apply func(s *Snapshot)) {
	m.mu.Lock()
	delete(m.inFlight, kind)
	apply(&m.state)
	m.unlockAndPublish()
}

// clearLocked empties the identity and tokens in memory and in the store.
func (m *Manager) clearLocked(s *Snapshot) error {
	*s = Snapshot{Status: s.Status, Err: s.Err}
	if err := m.store.Clear(); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear token store")
		return apierror.Storage(errors.Wrap(err, "store.Clear"))
	}
	return nil
}

func (m *Manager) failed(aerr *apierror.Error, clear bool) func(s *Snapshot) {
	return func(s *Snapshot) {
		if clear {
			_ = m.clearLocked(s)
		}
		s.Status = StatusFailed
		s.Err = aerr
	}
}

// commit stores grant as the new session. On a store failure it restores
// the prior record and fails the operation.
func (m *Manager) commit(grant *Grant, clearOnFailure bool, commitErr **apierror.Error) func(s *Snapshot) {
	return func(s *Snapshot) {
		next := Snapshot{
			User:         grant.User,
			AccessToken:  grant.Tokens.Access,
			RefreshToken: grant.Tokens.Refresh,
			Status:       StatusSucceeded,
		}
		if err := m.store.Save(next.Record()); err != nil {
			*commitErr = apierror.Storage(errors.Wrap(err, "store.Save"))
			if clearOnFailure {
				_ = m.clearLocked(s)
			} else {
				m.restoreLocked(s)
			}
			s.Status = StatusFailed
			s.Err = *commitErr
			return
		}
		*s = next
	}
}

func (m *Manager) restoreLocked(s *Snapshot) {
	var err error
	if rec := s.Record(); rec.Empty() {
		err = m.store.Clear()
	} else {
		err = m.store.Save(rec)
	}
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to restore prior session record")
	}
}

// abort is the deferred guard for an operation that returned or panicked
// without reaching a terminal transition.
func (m *Manager) abort(kind opKind, clear bool, recovered any) {
	m.logger.Error().Interface("panic", recovered).Str("op", string(kind)).Msg("operation aborted")
	m.finish(kind, m.failed(&apierror.Error{Kind: apierror.KindServer, Message: string(kind) + " aborted"}, clear))
	if recovered != nil {
		panic(recovered)
	}
}

// Login authenticates with email and password. On success the token pair
// and identity are stored and the identity is returned so the caller can
// route by role. On failure any stale session is cleared.
func (m *Manager) Login(ctx context.Context, form LoginForm) (*users.User, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if err := m.begin(opLogin); err != nil {
		return nil, err
	}
	settled := false
	defer func() {
		if !settled {
			m.abort(opLogin, true, recover())
		}
	}()

	grant, err := m.auth.ObtainToken(ctx, form)
	if err == nil {
		err = checkGrant(grant)
	}
	if err != nil {
		aerr := apierror.From(err)
		m.finish(opLogin, m.failed(aerr, true))
		settled = true
		m.logger.Debug().Err(aerr).Str("email", form.Email).Msg("login failed")
		return nil, aerr
	}

	var commitErr *apierror.Error
	m.finish(opLogin, m.commit(grant, true, &commitErr))
	settled = true
	if commitErr != nil {
		return nil, commitErr
	}
	m.logger.Debug().Int("user_id", grant.User.ID).Str("role", grant.User.Role.String()).Msg("login succeeded")
	u := *grant.User
	return &u, nil
}

// Signup registers a new account and starts a session for it. A failed
// signup leaves any prior session untouched.
func (m *Manager) Signup(ctx context.Context, form SignupForm) (*users.User, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if err := m.begin(opSignup); err != nil {
		return nil, err
	}
	settled := false
	defer func() {
		if !settled {
			m.abort(opSignup, false, recover())
		}
	}()

	grant, err := m.auth.Signup(ctx, form)
	if err == nil && grant != nil && grant.Tokens.Access == "" {
		// Registration without tokens: complete the session with a token request.
		var login *Grant
		login, err = m.auth.ObtainToken(ctx, LoginForm{Email: form.Email, Password: form.Password})
		if err == nil {
			grant.Tokens = login.Tokens
			if grant.User == nil {
				grant.User = login.User
			}
		}
	}
	if err == nil {
		err = checkGrant(grant)
	}
	if err != nil {
		aerr := apierror.From(err)
		m.finish(opSignup, m.failed(aerr, false))
		settled = true
		m.logger.Debug().Err(aerr).Str("email", form.Email).Msg("signup failed")
		return nil, aerr
	}

	var commitErr *apierror.Error
	m.finish(opSignup, m.commit(grant, false, &commitErr))
	settled = true
	if commitErr != nil {
		return nil, commitErr
	}
	m.logger.Debug().Int("user_id", grant.User.ID).Msg("signup succeeded")
	u := *grant.User
	return &u, nil
}

// Logout ends the local session unconditionally. Server-side revocation is
// attempted first and its failure is only logged. The returned error is
// non-nil only when the store could not be cleared or another logout is in
// flight.
func (m *Manager) Logout(ctx context.Context) (err error) {
	if err := m.begin(opLogout); err != nil {
		return err
	}
	defer func() {
		recovered := recover()
		var clearErr error
		m.finish(opLogout, func(s *Snapshot) {
			s.Err = nil
			s.Status = StatusSucceeded
			if cerr := m.clearLocked(s); cerr != nil {
				clearErr = cerr
				s.Status = StatusFailed
				s.Err = apierror.From(cerr)
			}
		})
		if recovered != nil {
			panic(recovered)
		}
		if clearErr != nil {
			err = clearErr
		}
	}()

	m.mu.Lock()
	access, refresh := m.state.AccessToken, m.state.RefreshToken
	m.mu.Unlock()

	if refresh != "" {
		if rerr := m.auth.Revoke(ctx, access, refresh); rerr != nil {
			m.logger.Warn().Err(rerr).Msg("token revocation failed, local session cleared anyway")
		}
	}
	m.logger.Debug().Msg("logged out")
	return nil
}

// Teardown clears the session locally with no network call. reason is
// recorded in Snapshot.Err when it is an *apierror.Error.
func (m *Manager) Teardown(reason error) {
	m.mu.Lock()
	var aerr *apierror.Error
	if errors.As(reason, &aerr) {
		m.state.Err = aerr
	}
	_ = m.clearLocked(&m.state)
	m.logger.Warn().Err(reason).Msg("session torn down")
	m.unlockAndPublish()
}

// TeardownIfHolding is Teardown for a failed refresh made with usedRefresh.
// It does nothing and returns false when the session no longer holds
// usedRefresh, so a newer login survives a stale refresh failure.
func (m *Manager) TeardownIfHolding(usedRefresh string, reason error) bool {
	m.mu.Lock()
	if usedRefresh == "" || m.state.RefreshToken != usedRefresh {
		m.mu.Unlock()
		m.logger.Debug().Err(reason).Msg("stale refresh failure ignored")
		return false
	}
	var aerr *apierror.Error
	if errors.As(reason, &aerr) {
		m.state.Err = aerr
	}
	_ = m.clearLocked(&m.state)
	m.logger.Warn().Err(reason).Msg("session torn down")
	m.unlockAndPublish()
	return true
}

// AccessToken returns the current access token, or "".
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AccessToken
}

// RefreshToken returns the current refresh token, or "".
func (m *Manager) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.RefreshToken
}

// ApplyRefreshedAccess stores the result of a refresh made with usedRefresh.
// If the session no longer holds usedRefresh (logout, teardown or a new login
// happened meanwhile) nothing is written and apierror.ErrSessionChanged is
// returned. A rotated refresh token in pair replaces the stored one.
func (m *Manager) ApplyRefreshedAccess(usedRefresh string, pair token.Pair) error {
	m.mu.Lock()
	if usedRefresh == "" || m.state.RefreshToken != usedRefresh {
		m.mu.Unlock()
		return errors.Wrap(apierror.ErrSessionChanged, "[Manager.ApplyRefreshedAccess]")
	}
	if pair.Access == "" {
		m.mu.Unlock()
		return errors.Wrap(apierror.ErrRefreshFailed, "[Manager.ApplyRefreshedAccess] empty access token")
	}

	next := m.state
	next.AccessToken = pair.Access
	if pair.Refresh != "" {
		next.RefreshToken = pair.Refresh
	}
	if next.User == nil {
		next.User = identityFromToken(pair.Access)
	}
	if err := m.store.Save(next.Record()); err != nil {
		m.mu.Unlock()
		return apierror.Storage(errors.Wrap(err, "[Manager.ApplyRefreshedAccess] store.Save"))
	}
	m.state = next
	m.logger.Info().Bool("rotated", pair.Refresh != "").Msg("access token refreshed")
	m.unlockAndPublish()
	return nil
}

func checkGrant(grant *Grant) error {
	if grant == nil || grant.Tokens.Access == "" {
		return apierror.Server(0, "authentication response carried no access token")
	}
	if grant.User == nil {
		grant.User = identityFromToken(grant.Tokens.Access)
	}
	if grant.User == nil {
		return apierror.Server(0, "authentication response carried no user")
	}
	if !grant.User.Role.Valid() {
		return apierror.Server(0, "authentication response carried an unknown role")
	}
	return nil
}

func identityFromToken(raw string) *users.User {
	claims, err := token.Inspect(raw)
	if err != nil {
		return nil
	}
	u, err := claims.User()
	if err != nil {
		return nil
	}
	return u
}
