package ran

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ranctl/internal/protocol"
)

// Link is the live transport an agent is bound to.
type Link interface {
	Send(msg *protocol.Message) error
	NextXID() uint32
	AgentID() uint64
	RemoteAddr() string
	Close() error
}

// Agent is a base station agent known to the controller. It is created by
// configuration and bound to at most one Link at a time.
type Agent struct {
	Addr  EtherAddress
	Label string

	mu       sync.RWMutex
	link     Link
	lastSeen time.Time
	period   time.Duration
	ues      map[uint32]*UE
	config   *protocol.ConfigReply

	uplink   atomic.Uint64
	downlink atomic.Uint64
}

func NewAgent(addr EtherAddress, label string) *Agent {
	return &Agent{
		Addr:  addr,
		Label: label,
		ues:   make(map[uint32]*UE),
	}
}

func (a *Agent) Link() Link {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.link
}

func (a *Agent) Connected() bool {
	return a.Link() != nil
}

// Bind attaches l unless another link is already bound.
func (a *Agent) Bind(l Link, period time.Duration, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.link != nil && a.link != l {
		return false
	}
	a.link = l
	a.period = period
	a.lastSeen = now
	return true
}

// Unbind detaches l if it is the current link.
func (a *Agent) Unbind(l Link) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.link == nil || a.link != l {
		return false
	}
	a.link = nil
	return true
}

func (a *Agent) Touch(now time.Time) {
	a.mu.Lock()
	a.lastSeen = now
	a.mu.Unlock()
}

func (a *Agent) LastSeen() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastSeen
}

func (a *Agent) Period() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.period
}

// Expired reports whether more than periods*period has elapsed since the
// last HELLO. An agent without a period never expires.
func (a *Agent) Expired(now time.Time, periods int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.period <= 0 || a.lastSeen.IsZero() {
		return false
	}
	return now.Sub(a.lastSeen) > time.Duration(periods)*a.period
}

func (a *Agent) AddUplink(n int)   { a.uplink.Add(uint64(n)) }
func (a *Agent) AddDownlink(n int) { a.downlink.Add(uint64(n)) }
func (a *Agent) Uplink() uint64    { return a.uplink.Load() }
func (a *Agent) Downlink() uint64  { return a.downlink.Load() }

func (a *Agent) SetConfig(cfg *protocol.ConfigReply) {
	a.mu.Lock()
	a.config = cfg
	a.mu.Unlock()
}

func (a *Agent) Config() *protocol.ConfigReply {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// PutUE inserts ue, replacing any UE with the same RNTI.
func (a *Agent) PutUE(ue *UE) {
	a.mu.Lock()
	a.ues[ue.RNTI] = ue
	a.mu.Unlock()
}

func (a *Agent) RemoveUE(rnti uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ues[rnti]; !ok {
		return false
	}
	delete(a.ues, rnti)
	return true
}

func (a *Agent) UE(rnti uint32) (*UE, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ue, ok := a.ues[rnti]
	return ue, ok
}

func (a *Agent) UECount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ues)
}

// UEs returns the attached UEs ordered by RNTI.
func (a *Agent) UEs() []*UE {
	a.mu.RLock()
	out := make([]*UE, 0, len(a.ues))
	for _, ue := range a.ues {
		out = append(out, ue)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RNTI < out[j].RNTI })
	return out
}

// Send delivers body with the given xid. It reports false when the agent
// has no link.
func (a *Agent) Send(xid uint32, body protocol.Body) (bool, error) {
	link := a.Link()
	if link == nil {
		return false, nil
	}
	msg := protocol.New(link.AgentID(), xid, protocol.DirectionInitiating, body)
	return true, link.Send(msg)
}

type AgentSnapshot struct {
	Addr      EtherAddress `json:"addr"`
	Label     string       `json:"label"`
	Connected bool         `json:"connected"`
	Remote    string       `json:"remote,omitempty"`
	LastSeen  time.Time    `json:"last_seen"`
	Period    string       `json:"period"`
	UEs       int          `json:"ues"`
	Uplink    uint64       `json:"uplink_bytes"`
	Downlink  uint64       `json:"downlink_bytes"`
	Cells     int          `json:"cells"`
}

func (a *Agent) Snapshot() AgentSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := AgentSnapshot{
		Addr:      a.Addr,
		Label:     a.Label,
		Connected: a.link != nil,
		LastSeen:  a.lastSeen,
		Period:    a.period.String(),
		UEs:       len(a.ues),
		Uplink:    a.uplink.Load(),
		Downlink:  a.downlink.Load(),
	}
	if a.link != nil {
		snap.Remote = a.link.RemoteAddr()
	}
	if a.config != nil {
		snap.Cells = len(a.config.Cells)
	}
	return snap
}
