package resilience

import (
	"strings"
	"time"
)

// Backend names with a tuned policy. Executors are built per backend so a
// tripped qdrant breaker never blocks postgres traffic.
const (
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
	BackendOllama   = "ollama"
	BackendGroq     = "groq"
	BackendNATS     = "nats"
)

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// Override carries the per-backend knobs operators may set. Zero fields keep
// the backend preset.
type Override struct {
	RetryMaxAttempts   int
	RetryMaxBackoff    time.Duration
	BreakerOpenTimeout time.Duration
	BreakerDisabled    bool
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// ForBackend returns the preset for backend, or DefaultConfig for names it
// does not know.
func ForBackend(backend string) Config {
	cfg := DefaultConfig()
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendPostgres:
		// Metric lookups sit on the request path; fail over to an empty
		// numeric branch quickly.
		cfg.RetryMaxAttempts = 2
		cfg.RetryInitialBackoff = 50 * time.Millisecond
		cfg.RetryMaxBackoff = 200 * time.Millisecond
		cfg.BreakerOpenTimeout = 15 * time.Second
	case BackendQdrant:
		cfg.RetryInitialBackoff = 50 * time.Millisecond
		cfg.RetryMaxBackoff = 250 * time.Millisecond
		cfg.BreakerOpenTimeout = 20 * time.Second
	case BackendOllama:
		// Local model loads can take seconds; retry less, wait longer.
		cfg.RetryMaxAttempts = 2
		cfg.RetryInitialBackoff = 500 * time.Millisecond
		cfg.RetryMaxBackoff = 2 * time.Second
		cfg.BreakerMinRequests = 5
		cfg.BreakerOpenTimeout = 60 * time.Second
	case BackendGroq:
		// 429s carry a short quota window.
		cfg.RetryInitialBackoff = 500 * time.Millisecond
		cfg.RetryMaxBackoff = 4 * time.Second
		cfg.RetryMultiplier = 3
		cfg.BreakerFailureRatio = 0.6
		cfg.BreakerOpenTimeout = 45 * time.Second
	case BackendNATS:
		cfg.RetryMaxAttempts = 4
		cfg.RetryInitialBackoff = 25 * time.Millisecond
		cfg.RetryMaxBackoff = 500 * time.Millisecond
		cfg.BreakerMinRequests = 20
	}
	return cfg
}

// Apply layers o on top of c.
func (c Config) Apply(o Override) Config {
	if o.RetryMaxAttempts > 0 {
		c.RetryMaxAttempts = o.RetryMaxAttempts
	}
	if o.RetryMaxBackoff > 0 {
		c.RetryMaxBackoff = o.RetryMaxBackoff
	}
	if o.BreakerOpenTimeout > 0 {
		c.BreakerOpenTimeout = o.BreakerOpenTimeout
	}
	if o.BreakerDisabled {
		c.BreakerEnabled = false
	}
	return c
}

// normalize fills unset or out of range fields from DefaultConfig.
func (c Config) normalize() Config {
	def := DefaultConfig()

	c.RetryMaxAttempts = positiveOr(c.RetryMaxAttempts, def.RetryMaxAttempts)
	c.RetryInitialBackoff = positiveOr(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(positiveOr(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}

	c.BreakerMinRequests = positiveOr(c.BreakerMinRequests, def.BreakerMinRequests)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = positiveOr(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positiveOr(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return c
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
