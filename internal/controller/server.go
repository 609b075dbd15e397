package controller

import (
	"sync"
	"time"

	"github.com/danmuck/ranctl/internal/macstats"
	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/danmuck/ranctl/internal/rrcmeas"
	"github.com/rs/zerolog/log"
)

// Server owns the registries shared by every connection and routes agent
// responses to module workers.
type Server struct {
	registry *ran.Registry
	timers   *module.TimerRegistry
	macStats *macstats.Worker
	rrcMeas  *rrcmeas.Worker
	started  time.Time

	mu      sync.RWMutex
	workers map[protocol.Kind][]*module.Worker
}

func NewServer(registry *ran.Registry, catalog macstats.Catalog) *Server {
	if registry == nil {
		registry = ran.NewRegistry()
	}
	timers := module.NewTimerRegistry()
	s := &Server{
		registry: registry,
		timers:   timers,
		macStats: macstats.NewWorker(registry, timers, catalog),
		rrcMeas:  rrcmeas.NewWorker(registry),
		started:  time.Now(),
		workers:  make(map[protocol.Kind][]*module.Worker),
	}
	s.RegisterWorker(s.macStats.Worker)
	s.RegisterWorker(s.rrcMeas.Worker)
	return s
}

func (s *Server) Registry() *ran.Registry          { return s.registry }
func (s *Server) Timers() *module.TimerRegistry    { return s.timers }
func (s *Server) MACStats() *macstats.Worker       { return s.macStats }
func (s *Server) RRCMeasurements() *rrcmeas.Worker { return s.rrcMeas }
func (s *Server) Started() time.Time               { return s.started }

// RegisterWorker routes responses of w.Kind() to w.
func (s *Server) RegisterWorker(w *module.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workers[w.Kind()] {
		if existing == w {
			return
		}
	}
	s.workers[w.Kind()] = append(s.workers[w.Kind()], w)
	log.Debug().Str("worker", w.Name()).Stringer("kind", w.Kind()).Msg("controller.Server.RegisterWorker")
}

// Route hands msg to every worker registered for its kind. It reports
// whether any module accepted it.
func (s *Server) Route(agent *ran.Agent, msg *protocol.Message) bool {
	s.mu.RLock()
	workers := append([]*module.Worker(nil), s.workers[msg.Kind()]...)
	s.mu.RUnlock()

	routed := false
	for _, w := range workers {
		if w.Dispatch(agent, msg) {
			routed = true
		}
	}
	return routed
}

// Detach clears the periodic transactions owned by agent after its link
// went away. The agent's UEs are left in place. Only this agent's ids
// leave the timer registry, not the whole set: periodic requests of
// agents that are still connected keep running, and every tracked id
// keeps naming a live periodic module.
func (s *Server) Detach(agent *ran.Agent) []uint32 {
	ids := s.timers.CancelAgent(agent.Addr)
	if len(ids) > 0 {
		log.Info().Stringer("agent", agent.Addr).Int("cancelled", len(ids)).Msg("controller.Server.Detach periodic requests cleared")
	}
	return ids
}

// Agents returns a snapshot of every registered agent.
func (s *Server) Agents() []ran.AgentSnapshot {
	agents := s.registry.Agents()
	out := make([]ran.AgentSnapshot, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Snapshot())
	}
	return out
}

// Close stops every worker's periodic runs.
func (s *Server) Close() {
	s.mu.RLock()
	var all []*module.Worker
	for _, ws := range s.workers {
		all = append(all, ws...)
	}
	s.mu.RUnlock()
	for _, w := range all {
		w.Close()
	}
}
