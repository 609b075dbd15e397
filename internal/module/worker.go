package module

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/ranctl/internal/observability"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/rs/zerolog/log"
)

// Worker owns the live modules of one type and routes the responses of
// one protocol kind to them.
type Worker struct {
	name   string
	kind   protocol.Kind
	timers *TimerRegistry
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	modules map[uint32]Module
	tickers map[uint32]context.CancelFunc
	lastID  uint32
	closed  bool
}

type WorkerOption func(*Worker)

// WithTimers links the worker to the periodic request registry so that
// removing a module also releases its timer entry.
func WithTimers(t *TimerRegistry) WorkerOption {
	return func(w *Worker) { w.timers = t }
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

func NewWorker(name string, kind protocol.Kind, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		name:    name,
		kind:    kind,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		modules: make(map[uint32]Module),
		tickers: make(map[uint32]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Name() string        { return w.name }
func (w *Worker) Kind() protocol.Kind { return w.kind }

// Add validates m and installs it. An equal live module is returned in
// its place. Once and Every modules run immediately; Every modules then
// rerun on their interval until removed.
func (w *Worker) Add(m Module) (Module, error) {
	if m == nil {
		return nil, errors.New("module: nil module")
	}
	b := m.base()
	if err := b.validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWorkerClosed
	}
	for _, existing := range w.modules {
		if existing.Equal(m) {
			w.mu.Unlock()
			log.Debug().Str("worker", w.name).Uint32("id", existing.base().ID()).Msg("module.Worker.Add reusing equal module")
			return existing, nil
		}
	}
	id := w.allocIDLocked()
	b.install(id, w)
	w.modules[id] = m
	live := len(w.modules)
	w.mu.Unlock()

	observability.SetLiveModules(w.name, live)
	log.Info().Str("worker", w.name).Uint32("id", id).Stringer("agent", b.agent.Addr).
		Stringer("every", b.recurrence.Mode).Msg("module.Worker.Add installed")

	if b.recurrence.Mode == ModeOff {
		return m, nil
	}
	if err := RunOnce(m); err != nil {
		log.Warn().Err(err).Str("worker", w.name).Uint32("id", id).Msg("module.Worker.Add initial run failed")
	}
	if b.recurrence.Mode == ModeEvery {
		w.schedule(m, b.recurrence.Interval)
	}
	return m, nil
}

// allocIDLocked returns the next free non-zero id.
func (w *Worker) allocIDLocked() uint32 {
	for {
		w.lastID++
		if w.lastID == 0 {
			continue
		}
		if _, taken := w.modules[w.lastID]; !taken {
			return w.lastID
		}
	}
}

func (w *Worker) schedule(m Module, every time.Duration) {
	id := m.base().ID()
	ctx, cancel := context.WithCancel(w.ctx)

	w.mu.Lock()
	if _, live := w.modules[id]; !live {
		w.mu.Unlock()
		cancel()
		return
	}
	w.tickers[id] = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := RunOnce(m); err != nil {
					log.Warn().Err(err).Str("worker", w.name).Uint32("id", id).Msg("module.Worker periodic run failed")
				}
			}
		}
	}()
}

// Remove stops and forgets the module. Unknown ids are ignored.
func (w *Worker) Remove(id uint32) bool {
	w.mu.Lock()
	m, ok := w.modules[id]
	if ok {
		delete(w.modules, id)
		if cancel, ticking := w.tickers[id]; ticking {
			cancel()
			delete(w.tickers, id)
		}
	}
	live := len(w.modules)
	w.mu.Unlock()

	if !ok {
		return false
	}
	m.base().uninstall()
	if w.timers != nil {
		w.timers.forget(id, w)
	}
	if r, ok := m.(Releaser); ok {
		r.Release()
	}
	observability.SetLiveModules(w.name, live)
	log.Info().Str("worker", w.name).Uint32("id", id).Msg("module.Worker.Remove removed")
	return true
}

func (w *Worker) Get(id uint32) (Module, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.modules[id]
	return m, ok
}

func (w *Worker) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.modules)
}

// Modules returns the live modules ordered by id.
func (w *Worker) Modules() []Module {
	w.mu.RLock()
	out := make([]Module, 0, len(w.modules))
	for _, m := range w.modules {
		out = append(out, m)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].base().ID() < out[j].base().ID() })
	return out
}

// Dispatch routes a response from agent to the module whose id equals the
// xid, falling back to identity matching. It reports whether any module
// accepted the message.
func (w *Worker) Dispatch(agent *ran.Agent, msg *protocol.Message) bool {
	if agent == nil || msg == nil || msg.Kind() != w.kind {
		return false
	}

	var targets []Module
	w.mu.RLock()
	if m, ok := w.modules[msg.Header.XID]; ok && m.base().agent.Addr == agent.Addr {
		targets = append(targets, m)
	} else {
		for _, m := range w.modules {
			matcher, ok := m.(Matcher)
			if ok && m.base().agent.Addr == agent.Addr && matcher.Matches(msg) {
				targets = append(targets, m)
			}
		}
	}
	w.mu.RUnlock()

	if len(targets) == 0 {
		log.Debug().Str("worker", w.name).Uint32("xid", msg.Header.XID).Stringer("agent", agent.Addr).
			Msg("module.Worker.Dispatch no module for response")
		return false
	}
	for _, m := range targets {
		w.deliver(m, msg)
	}
	return true
}

func (w *Worker) deliver(m Module, msg *protocol.Message) {
	b := m.base()
	if out, ok := msg.Body.(protocol.Outcome); ok {
		status, detail := out.Outcome()
		b.setOutcome(status, detail)
		if status != protocol.StatusOK {
			log.Error().Str("worker", w.name).Uint32("id", b.ID()).Uint32("status", uint32(status)).
				Str("detail", detail).Msg("module.Worker.deliver agent reported failure")
			return
		}
	}
	if err := m.HandleResponse(msg); err != nil {
		log.Error().Err(err).Str("worker", w.name).Uint32("id", b.ID()).Msg("module.Worker.deliver rejected response")
		return
	}
	b.notify(m, w.now())
	if c, ok := m.(Completer); ok && c.Complete() {
		w.Remove(b.ID())
	}
}

// Close stops every periodic run. Installed modules stay readable.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}
