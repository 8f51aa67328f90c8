package refresh

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// StoredRefreshToken is the server-side metadata kept for an opaque refresh
// token. The client only ever sees Token.
type StoredRefreshToken struct {
	Token  string    // Random hex string handed to the client
	UserID int       // Owner
	Iat    time.Time // Issued at
}

// Repo stores refresh token metadata keyed by the token string.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	DeleteByUserID(userID int) (int, error)
}
