package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/taskboard/internal/config"
	"github.com/stretchr/testify/require"
)

func TestEnvVars_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TASKBOARD_API_URL", "")
	t.Setenv("TASKBOARD_TOKEN_FILE", "")

	cfg := config.New()
	require.Equal(t, "Taskboard", cfg.GetAppName())
	require.Equal(t, ":8000", cfg.GetPort())
	require.Equal(t, "http://localhost:8000/", cfg.GetBaseURL())
	require.Equal(t, "session.json", filepath.Base(cfg.GetTokenFile()))
	require.Equal(t, 10, cfg.GetPageSize())
}

func TestEnvVars_Overrides(t *testing.T) {
	t.Setenv("PORT", ":9001")
	t.Setenv("TASKBOARD_API_URL", "http://api.test")
	t.Setenv("TASKBOARD_TOKEN_FILE", "/tmp/tb.json")
	t.Setenv("DEVSERVER_ACCESS_TTL", "2s")
	t.Setenv("TASKBOARD_BREAKER_FAILURES", "not-a-number")

	cfg := config.New()
	require.Equal(t, ":9001", cfg.GetPort())
	require.Equal(t, "http://api.test/", cfg.GetBaseURL())
	require.Equal(t, "/tmp/tb.json", cfg.GetTokenFile())
	require.Equal(t, 2*time.Second, cfg.GetAccessTokenExpiry())
	require.Equal(t, uint32(5), cfg.GetBreakerMaxFailures())
}

func TestCors_AllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	origins := config.New().GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("http://a.test"))
	require.True(t, origins.IsAllowedOrigin("http://b.test"))
	require.False(t, origins.IsAllowedOrigin("http://c.test"))
	require.Equal(t, "http://a.test, http://b.test", origins.String())
}
