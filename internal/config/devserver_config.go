package config

import "time"

// DevServerConfig configures the in-memory development backend.
type DevServerConfig interface {
	GetSigningSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
	GetPageSize() int
	GetAdminEmail() string
	GetAdminPassword() string
}

type DevServer struct{}

var _ DevServerConfig = DevServer{}

func (DevServer) GetSigningSecret() string {
	return GetEnv("DEVSERVER_SECRET", "taskboard-dev-secret")
}

// Kept short by default so the client's refresh path is exercised.
func (DevServer) GetAccessTokenExpiry() time.Duration {
	return GetDurationEnv("DEVSERVER_ACCESS_TTL", 5*time.Minute)
}

func (DevServer) GetRefreshTokenExpiry() time.Duration {
	return GetDurationEnv("DEVSERVER_REFRESH_TTL", 24*time.Hour)
}

func (DevServer) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (DevServer) GetPageSize() int {
	return GetIntEnv("DEVSERVER_PAGE_SIZE", 10)
}

func (DevServer) GetAdminEmail() string {
	return GetEnv("DEVSERVER_ADMIN_EMAIL", "admin@taskboard.local")
}

func (DevServer) GetAdminPassword() string {
	return GetEnv("DEVSERVER_ADMIN_PASSWORD", "admin12345")
}
