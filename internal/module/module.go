package module

import (
	"sync"
	"time"

	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Mode selects how often a module issues its request.
type Mode int

const (
	ModeOnce Mode = iota
	ModeEvery
	ModeOff
)

func (m Mode) String() string {
	switch m {
	case ModeOnce:
		return "once"
	case ModeEvery:
		return "every"
	case ModeOff:
		return "off"
	default:
		return "unknown"
	}
}

type Recurrence struct {
	Mode     Mode
	Interval time.Duration
}

func Once() Recurrence                 { return Recurrence{Mode: ModeOnce} }
func Every(d time.Duration) Recurrence { return Recurrence{Mode: ModeEvery, Interval: d} }

// Off installs a module that never sends on its own. It stays in the
// worker, idle but still routable, until removed.
func Off() Recurrence { return Recurrence{Mode: ModeOff} }

func (r Recurrence) Validate() error {
	switch r.Mode {
	case ModeOnce, ModeOff:
		return nil
	case ModeEvery:
		if r.Interval <= 0 {
			return Invalid("every", "interval must be positive, got %s", r.Interval)
		}
		return nil
	default:
		return Invalid("every", "unknown recurrence mode %d", r.Mode)
	}
}

// ResultFunc receives a module after each successful response.
type ResultFunc func(Module)

// Module is one long-lived controller request against an agent. Concrete
// modules embed Base.
type Module interface {
	base() *Base
	// Validate checks type-specific required fields.
	Validate() error
	// Request builds the body sent on every run.
	Request() (protocol.Body, error)
	// HandleResponse caches a successful response.
	HandleResponse(msg *protocol.Message) error
	Equal(other Module) bool
}

// Matcher is implemented by modules that accept responses whose xid does
// not match their id, routed instead by agent/UE identity.
type Matcher interface {
	Matches(msg *protocol.Message) bool
}

// Completer is implemented by modules that retire after a response.
type Completer interface {
	Complete() bool
}

// Releaser is implemented by modules that hold state outside the worker.
// Release runs once after the module is removed.
type Releaser interface {
	Release()
}

const resultBuffer = 8

type Base struct {
	kind       string
	tenant     uuid.UUID
	agent      *ran.Agent
	recurrence Recurrence
	onResult   ResultFunc
	results    chan Module

	mu        sync.RWMutex
	id        uint32
	worker    *Worker
	retcode   protocol.Status
	detail    string
	updatedAt time.Time
}

func NewBase(kind string, tenant uuid.UUID, agent *ran.Agent, every Recurrence, onResult ResultFunc) Base {
	return Base{
		kind:       kind,
		tenant:     tenant,
		agent:      agent,
		recurrence: every,
		onResult:   onResult,
		results:    make(chan Module, resultBuffer),
	}
}

func (b *Base) base() *Base { return b }

func (b *Base) ID() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

func (b *Base) Type() string           { return b.kind }
func (b *Base) Tenant() uuid.UUID      { return b.tenant }
func (b *Base) Agent() *ran.Agent      { return b.agent }
func (b *Base) Recurrence() Recurrence { return b.recurrence }

// Results delivers the module after each successful response. Deliveries
// are dropped when the buffer is full.
func (b *Base) Results() <-chan Module { return b.results }

// Retcode is the status of the most recent response.
func (b *Base) Retcode() (protocol.Status, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.retcode, b.detail
}

func (b *Base) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

// Live reports whether the module is installed in a worker.
func (b *Base) Live() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.worker != nil
}

// SameTarget compares the identity every module shares.
func (b *Base) SameTarget(other *Base) bool {
	if other == nil || b.agent == nil || other.agent == nil {
		return false
	}
	return b.kind == other.kind && b.tenant == other.tenant && b.agent.Addr == other.agent.Addr
}

func (b *Base) validate() error {
	if b.kind == "" {
		return Missing("type")
	}
	if b.tenant == uuid.Nil {
		return Missing("tenant_id")
	}
	if b.agent == nil {
		return Missing("agent")
	}
	return b.recurrence.Validate()
}

func (b *Base) install(id uint32, w *Worker) {
	b.mu.Lock()
	b.id = id
	b.worker = w
	b.mu.Unlock()
}

func (b *Base) uninstall() {
	b.mu.Lock()
	b.worker = nil
	b.mu.Unlock()
}

func (b *Base) setOutcome(status protocol.Status, detail string) {
	b.mu.Lock()
	b.retcode = status
	b.detail = detail
	b.mu.Unlock()
}

func (b *Base) notify(m Module, at time.Time) {
	b.mu.Lock()
	b.updatedAt = at
	b.mu.Unlock()

	select {
	case b.results <- m:
	default:
		log.Warn().Str("module", b.kind).Uint32("id", b.ID()).Msg("module.notify result buffer full, dropping")
	}
	if b.onResult != nil {
		b.onResult(m)
	}
}

// RunOnce sends the module's request to its agent. It is a no-op when the
// agent has no link.
func RunOnce(m Module) error {
	b := m.base()
	body, err := m.Request()
	if err != nil {
		return err
	}
	sent, err := b.agent.Send(b.ID(), body)
	if err != nil {
		return err
	}
	if !sent {
		log.Debug().Str("module", b.kind).Uint32("id", b.ID()).Stringer("agent", b.agent.Addr).
			Msg("module.RunOnce agent not connected")
	}
	return nil
}
