package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// EndpointConfig overrides the client rate for one endpoint.
type EndpointConfig struct {
	Path   string // exact path, or a prefix when it ends with "/"
	Method string
	Rate   rate.Limit
	Burst  int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Rate            rate.Limit // requests per second per client
	Burst           int
	CleanupInterval time.Duration
	IdleTTL         time.Duration
	Endpoints       []EndpointConfig
}

// DefaultConfig allows 5 requests per second with bursts of 10.
func DefaultConfig() *Config {
	return FromSettings(5, 10)
}

// FromSettings builds a Config from the server settings. A non-positive
// rate disables limiting.
func FromSettings(perSecond float64, burst int) *Config {
	if perSecond <= 0 {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		Rate:            rate.Limit(perSecond),
		Burst:           burst,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Endpoints:       DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs limits the endpoints that execute stages far more
// strictly than reads.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/runs/", Method: "POST", Rate: rate.Every(6 * time.Second), Burst: 2},
		{Path: "/health", Method: "GET", Rate: rate.Inf},
	}
}
