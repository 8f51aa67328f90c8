package config

type Config interface {
	EnvConfig
	ClientConfig
	DevServerConfig
	CorsConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetTokenFile() string
	GetLogLevel() string
	GetPort() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Client
	DevServer
	Cors
}

func New() Config {
	return mainConfig{}
}
