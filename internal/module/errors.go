package module

import (
	"errors"
	"fmt"

	"github.com/danmuck/ranctl/internal/ran"
	"github.com/google/uuid"
)

var (
	// ErrInvalidConfig marks configuration rejected before any mutation.
	ErrInvalidConfig = errors.New("module: invalid configuration")
	// ErrNotFound marks a reference to an unknown tenant, agent, or UE.
	ErrNotFound     = errors.New("module: not found")
	ErrWorkerClosed = errors.New("module: worker closed")
)

// ConfigError names the offending configuration key.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("module: %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func Missing(key string) error {
	return &ConfigError{Key: key, Reason: "missing " + key + " element", Err: ErrInvalidConfig}
}

func Invalid(key, format string, args ...any) error {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidConfig}
}

func NotFound(key, format string, args ...any) error {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// Directory resolves the agents a tenant may address.
type Directory interface {
	TenantAgent(tenant uuid.UUID, addr ran.EtherAddress) (*ran.Agent, error)
}

// LookupAgent resolves addr under tenant, mapping registry misses to
// not-found configuration errors.
func LookupAgent(dir Directory, tenant uuid.UUID, addr ran.EtherAddress) (*ran.Agent, error) {
	if tenant == uuid.Nil {
		return nil, Missing("tenant_id")
	}
	if addr.IsZero() {
		return nil, Missing("agent")
	}
	agent, err := dir.TenantAgent(tenant, addr)
	switch {
	case err == nil:
		return agent, nil
	case errors.Is(err, ran.ErrTenantNotFound):
		return nil, NotFound("tenant_id", "unknown tenant %s", tenant)
	case errors.Is(err, ran.ErrAgentNotFound):
		return nil, NotFound("agent", "unknown agent %s", addr)
	default:
		return nil, err
	}
}
