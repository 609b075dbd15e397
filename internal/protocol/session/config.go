package session

import (
	"time"

	"github.com/danmuck/ranctl/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines link timing and buffering defaults.
type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// HeartbeatInterval is how often a connection checks agent liveness.
	HeartbeatInterval time.Duration
	// AgentPeriod is assigned to an agent when it binds. The agent is
	// considered dead after DeadAfterPeriods periods without a HELLO.
	AgentPeriod      time.Duration
	DeadAfterPeriods int
	// PrebindBacklog bounds messages held until the agent binds.
	PrebindBacklog int
	Limits         frame.Limits
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 500 * time.Millisecond,
		AgentPeriod:       5000 * time.Millisecond,
		DeadAfterPeriods:  3,
		PrebindBacklog:    16,
		Limits:            frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// Normalize fills zero values from DefaultConfig.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.AgentPeriod <= 0 {
		c.AgentPeriod = def.AgentPeriod
	}
	if c.DeadAfterPeriods <= 0 {
		c.DeadAfterPeriods = def.DeadAfterPeriods
	}
	if c.PrebindBacklog <= 0 {
		c.PrebindBacklog = def.PrebindBacklog
	}
	if c.Limits.MaxBodyBytes == 0 {
		c.Limits = def.Limits
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// DeadAfter is the silence after which a bound agent is dropped.
func (c Config) DeadAfter() time.Duration {
	return time.Duration(c.DeadAfterPeriods) * c.AgentPeriod
}
