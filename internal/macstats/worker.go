package macstats

import (
	"strings"

	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Request is a caller's ask for MAC statistics from one agent.
type Request struct {
	Tenant   uuid.UUID
	Agent    ran.EtherAddress
	Every    module.Recurrence
	Config   RequestConfig
	OnResult module.ResultFunc
}

type Worker struct {
	*module.Worker
	dir     module.Directory
	timers  *module.TimerRegistry
	catalog Catalog
}

func NewWorker(dir module.Directory, timers *module.TimerRegistry, catalog Catalog) *Worker {
	return &Worker{
		Worker:  module.NewWorker(TypeName, protocol.KindStatsResponse, module.WithTimers(timers)),
		dir:     dir,
		timers:  timers,
		catalog: catalog,
	}
}

// Submit validates req and either installs a new statistics module or,
// for frequency "off", cancels the periodic request named by timer_xid.
// Nothing is mutated when validation fails.
func (w *Worker) Submit(req Request) (*Module, error) {
	cfg := req.Config
	if err := cfg.checkHeader(w.catalog, w.timers); err != nil {
		return nil, err
	}
	agent, err := module.LookupAgent(w.dir, req.Tenant, req.Agent)
	if err != nil {
		return nil, err
	}
	freq := strings.TrimSpace(cfg.ReportFrequency)
	if freq == FrequencyOff {
		return w.cancel(agent, cfg)
	}
	if err := cfg.checkReport(w.catalog, agent); err != nil {
		return nil, err
	}

	m := &Module{
		Base: module.NewBase(TypeName, req.Tenant, agent, req.Every, req.OnResult),
		cfg:  cfg,
		req:  cfg.request(w.catalog),
	}
	installed, err := w.Add(m)
	if err != nil {
		return nil, err
	}
	stats := installed.(*Module)
	if freq == FrequencyPeriodical {
		w.timers.Track(stats.ID(), agent.Addr, w.Worker)
	}
	return stats, nil
}

func (w *Worker) cancel(agent *ran.Agent, cfg RequestConfig) (*Module, error) {
	xid := *cfg.TimerXID
	if timer, ok := w.timers.Get(xid); ok && timer.Agent != agent.Addr {
		return nil, module.Invalid("timer_xid", "periodic request %d belongs to agent %s", xid, timer.Agent)
	}
	var stats *Module
	if live, ok := w.Get(xid); ok {
		stats, _ = live.(*Module)
	}

	_, err := agent.Send(xid, cfg.request(w.catalog))
	if err != nil {
		log.Warn().Err(err).Stringer("agent", agent.Addr).Uint32("xid", xid).Msg("macstats.Worker.cancel send failed")
	}
	w.timers.Cancel(xid)
	log.Info().Stringer("agent", agent.Addr).Uint32("xid", xid).Msg("macstats.Worker.cancel periodic request stopped")
	return stats, err
}
