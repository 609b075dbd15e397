package ran

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrAgentNotFound  = errors.New("ran: agent not found")
	ErrAgentExists    = errors.New("ran: agent already registered")
	ErrTenantNotFound = errors.New("ran: tenant not found")
	ErrTenantExists   = errors.New("ran: tenant already registered")
)

// Tenant groups agents under one operator.
type Tenant struct {
	ID     uuid.UUID
	Name   string
	agents map[EtherAddress]struct{}
}

// Registry holds the agents and tenants known to the controller.
type Registry struct {
	mu      sync.RWMutex
	agents  map[EtherAddress]*Agent
	tenants map[uuid.UUID]*Tenant
}

func NewRegistry() *Registry {
	return &Registry{
		agents:  make(map[EtherAddress]*Agent),
		tenants: make(map[uuid.UUID]*Tenant),
	}
}

func (r *Registry) AddAgent(addr EtherAddress, label string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, addr)
	}
	a := NewAgent(addr, strings.TrimSpace(label))
	r.agents[addr] = a
	return a, nil
}

func (r *Registry) Agent(addr EtherAddress) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[addr]
	return a, ok
}

// Agents returns a snapshot of registered agents ordered by address.
func (r *Registry) Agents() []*Agent {
	r.mu.RLock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Addr.ID() < out[j].Addr.ID() })
	return out
}

// AddTenant registers a tenant. A nil id gets a fresh random one.
func (r *Registry) AddTenant(id uuid.UUID, name string) (*Tenant, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantExists, id)
	}
	t := &Tenant{ID: id, Name: strings.TrimSpace(name), agents: make(map[EtherAddress]struct{})}
	r.tenants[id] = t
	return t, nil
}

// Assign places a registered agent under a tenant.
func (r *Registry) Assign(tenant uuid.UUID, addr EtherAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenant]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenant)
	}
	if _, ok := r.agents[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, addr)
	}
	t.agents[addr] = struct{}{}
	return nil
}

// TenantAgent resolves an agent that belongs to tenant.
func (r *Registry) TenantAgent(tenant uuid.UUID, addr EtherAddress) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenant)
	}
	if _, ok := t.agents[addr]; !ok {
		return nil, fmt.Errorf("%w: %s in tenant %s", ErrAgentNotFound, addr, tenant)
	}
	a, ok := r.agents[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, addr)
	}
	return a, nil
}

type TenantSnapshot struct {
	ID     uuid.UUID      `json:"id"`
	Name   string         `json:"name"`
	Agents []EtherAddress `json:"agents"`
}

func (r *Registry) Tenants() []TenantSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TenantSnapshot, 0, len(r.tenants))
	for _, t := range r.tenants {
		snap := TenantSnapshot{ID: t.ID, Name: t.Name, Agents: make([]EtherAddress, 0, len(t.agents))}
		for addr := range t.agents {
			snap.Agents = append(snap.Agents, addr)
		}
		sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].ID() < snap.Agents[j].ID() })
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
