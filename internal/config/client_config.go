package config

import "time"

// ClientConfig tunes the HTTP transport used by the request client.
type ClientConfig interface {
	GetRequestTimeout() time.Duration
	GetBreakerMaxFailures() uint32
	GetBreakerOpenTimeout() time.Duration
}

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetRequestTimeout() time.Duration {
	return GetDurationEnv("TASKBOARD_TIMEOUT", 15*time.Second)
}

// GetBreakerMaxFailures is the number of consecutive transport or 5xx
// failures that opens the circuit.
func (Client) GetBreakerMaxFailures() uint32 {
	return uint32(GetIntEnv("TASKBOARD_BREAKER_FAILURES", 5))
}

func (Client) GetBreakerOpenTimeout() time.Duration {
	return GetDurationEnv("TASKBOARD_BREAKER_TIMEOUT", 30*time.Second)
}
