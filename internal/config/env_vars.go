package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar      = "PORT"
	appNameVar      = "APP_NAME"
	baseURLVar      = "TASKBOARD_API_URL"
	tokenFileVar    = "TASKBOARD_TOKEN_FILE"
	logLevelEnvVar  = "LOG_LEVEL"
	defaultTokenDir = ".taskboard"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetPort returns the dev server listen address, always with a leading colon.
func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8000")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Taskboard")
}

func (EnvVars) GetEnv() string {
	return GetEnv("ENV", "DEV")
}

// GetBaseURL returns the backend root all REST paths are resolved against.
// It always ends with a slash.
func (EnvVars) GetBaseURL() string {
	u := GetEnv(baseURLVar, "http://localhost:8000/")
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// GetTokenFile is where the CLI persists the session between runs.
func (EnvVars) GetTokenFile() string {
	if f := os.Getenv(tokenFileVar); f != "" {
		return f
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(defaultTokenDir, "session.json")
	}
	return filepath.Join(home, defaultTokenDir, "session.json")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses envVar with time.ParseDuration, falling back to
// defaultValue when unset or malformed.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func GetIntEnv(envVar string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
