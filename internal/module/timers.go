package module

import (
	"sort"
	"sync"

	"github.com/danmuck/ranctl/internal/ran"
)

// Timer is one live periodic request. Its id is the module id and the
// xid the agent uses for every periodic response.
type Timer struct {
	ID     uint32
	Agent  ran.EtherAddress
	worker *Worker
}

// TimerRegistry tracks the periodic requests an agent is executing so
// that they can later be cancelled by xid.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[uint32]Timer
}

func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[uint32]Timer)}
}

// Track records a periodic module installed in w.
func (t *TimerRegistry) Track(id uint32, agent ran.EtherAddress, w *Worker) {
	t.mu.Lock()
	t.timers[id] = Timer{ID: id, Agent: agent, worker: w}
	t.mu.Unlock()
}

func (t *TimerRegistry) Contains(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[id]
	return ok
}

func (t *TimerRegistry) Get(id uint32) (Timer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.timers[id]
	return timer, ok
}

// Cancel removes the entry and its module. It reports false for unknown ids.
func (t *TimerRegistry) Cancel(id uint32) bool {
	t.mu.Lock()
	timer, ok := t.timers[id]
	delete(t.timers, id)
	t.mu.Unlock()
	if !ok {
		return false
	}
	if timer.worker != nil {
		timer.worker.Remove(id)
	}
	return true
}

// CancelAgent cancels every periodic request owned by agent.
func (t *TimerRegistry) CancelAgent(agent ran.EtherAddress) []uint32 {
	t.mu.Lock()
	var ids []uint32
	for id, timer := range t.timers {
		if timer.Agent == agent {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t.Cancel(id)
	}
	return ids
}

// forget drops the entry for id if w owns it.
func (t *TimerRegistry) forget(id uint32, w *Worker) {
	t.mu.Lock()
	if timer, ok := t.timers[id]; ok && timer.worker == w {
		delete(t.timers, id)
	}
	t.mu.Unlock()
}

func (t *TimerRegistry) IDs() []uint32 {
	t.mu.Lock()
	out := make([]uint32, 0, len(t.timers))
	for id := range t.timers {
		out = append(out, id)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *TimerRegistry) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
