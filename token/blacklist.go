package token

import (
	"errors"
	"sync"
	"time"
)

var ErrMissingJTI = errors.New("access token has no jti")

const minSweepSize = 64

// Blacklist holds the jti of every access token revoked at logout, until
// the token would have expired on its own.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
	sweepAt int
}

func NewBlacklist(now func() time.Time) *Blacklist {
	if now == nil {
		now = time.Now
	}
	return &Blacklist{entries: make(map[string]time.Time), now: now, sweepAt: minSweepSize}
}

// Add revokes jti. Tokens that have already expired are not recorded. When
// the list outgrows its sweep size the expired entries are dropped.
func (b *Blacklist) Add(jti string, exp time.Time) error {
	if jti == "" {
		return ErrMissingJTI
	}
	now := b.now()
	if !exp.After(now) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[jti] = exp
	if len(b.entries) > b.sweepAt {
		b.sweepLocked(now)
		b.sweepAt = max(2*len(b.entries), minSweepSize)
	}
	return nil
}

func (b *Blacklist) IsRevoked(jti string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[jti]
	return ok
}

func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Cleanup drops entries whose token has expired and returns how many went.
func (b *Blacklist) Cleanup() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sweepLocked(b.now())
}

func (b *Blacklist) sweepLocked(now time.Time) int {
	n := 0
	for jti, exp := range b.entries {
		if !exp.After(now) {
			delete(b.entries, jti)
			n++
		}
	}
	return n
}
