package vault

import (
	"time"
)

// HealthConfig tunes the quote staleness gate.
type HealthConfig struct {
	// StaleThreshold is the maximum age of the held off-chain quote
	// before consumers should prefer the on-chain fallback.
	StaleThreshold time.Duration
}

// DefaultHealthConfig returns production defaults. Off-chain quotes are
// expected roughly every poll interval, so a minute of silence means the
// feed is gone.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		StaleThreshold: time.Minute,
	}
}

// Health gates trust in the off-chain quote feed: a held quote that is
// missing, fallback-sourced, or stale steers consumers to the on-chain
// value of last resort.
type Health struct {
	cfg HealthConfig
	sub *Subscriber

	nowFunc func() time.Time // injectable clock for testing
}

// NewHealth creates a Health gate over the given subscriber.
func NewHealth(cfg HealthConfig, sub *Subscriber) *Health {
	return &Health{
		cfg:     cfg,
		sub:     sub,
		nowFunc: time.Now,
	}
}

// Usable reports whether the held quote is an off-chain quote fresh
// enough to act on.
func (h *Health) Usable() bool {
	q, ok := h.sub.Current()
	if !ok {
		return false
	}
	if q.Source != SourceOffchain {
		return false
	}
	age := h.nowFunc().UnixMilli() - q.Timestamp
	return age >= 0 && time.Duration(age)*time.Millisecond <= h.cfg.StaleThreshold
}
