package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/internal/config"
)

var ErrExpired = errors.New("refresh token expired")

// Manager handles refresh token creation, validation and revocation.
// A user may hold several live refresh tokens (one per login).
type Manager struct {
	repo        Repo
	config      config.DevServerConfig
	nowTimeFunc func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTimeFunc = now
	}
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, cfg config.DevServerConfig, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:        repo,
		config:      cfg,
		nowTimeFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Create generates a new refresh token for userID and stores it
func (m *Manager) Create(userID int) (string, error) {
	tokenBytes := make([]byte, m.config.GetRefreshTokenLength())
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[refresh.Manager.Create] rand.Read")
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:  tokenStr,
		UserID: userID,
		Iat:    m.nowTimeFunc(),
	}); err != nil {
		return "", errors.Wrap(err, "[refresh.Manager.Create] Upsert")
	}
	return tokenStr, nil
}

// Validate returns the stored token if it exists and has not expired.
// Expired tokens are removed.
func (m *Manager) Validate(token string) (*StoredRefreshToken, error) {
	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, err
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, ErrExpired
	}
	return rt, nil
}

// Delete removes a refresh token from storage
func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// IsExpired checks if a refresh token has outlived the configured expiry
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return m.nowTimeFunc().Sub(rt.Iat) > m.config.GetRefreshTokenExpiry()
}
