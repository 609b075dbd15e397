package rrcmeas

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const TypeName = "ue_rrc_measurements"

// ReportIntervals maps accepted interval names to their wire codes.
var ReportIntervals = map[string]uint32{
	"480ms":   protocol.ReportInterval480ms,
	"640ms":   protocol.ReportInterval640ms,
	"1024ms":  protocol.ReportInterval1024ms,
	"2048ms":  protocol.ReportInterval2048ms,
	"5120ms":  protocol.ReportInterval5120ms,
	"10240ms": protocol.ReportInterval10240ms,
	"1min":    protocol.ReportInterval1min,
	"6min":    protocol.ReportInterval6min,
	"12min":   protocol.ReportInterval12min,
	"30min":   protocol.ReportInterval30min,
	"60min":   protocol.ReportInterval60min,
}

var errUnexpectedBody = errors.New("rrcmeas: unexpected response body")

type RequestConfig struct {
	ReportInterval   string  `json:"reportInterval" toml:"report_interval"`
	CarrierFrequency *uint32 `json:"reporting_carrier_frequency" toml:"reporting_carrier_frequency"`
}

func (c RequestConfig) check() error {
	interval := strings.TrimSpace(c.ReportInterval)
	if interval == "" {
		return module.Missing("reportInterval")
	}
	if _, ok := ReportIntervals[interval]; !ok {
		return module.Invalid("reportInterval", "unknown interval %q, want one of %v", interval, intervalNames())
	}
	if c.CarrierFrequency == nil {
		return module.Missing("reporting_carrier_frequency")
	}
	if *c.CarrierFrequency == 0 {
		return module.Invalid("reporting_carrier_frequency", "EARFCN must be positive")
	}
	return nil
}

func intervalNames() []string {
	out := make([]string, 0, len(ReportIntervals))
	for k := range ReportIntervals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Module configures RRC measurements on one UE and caches its reports.
type Module struct {
	module.Base
	ue       *ran.UE
	rnti     uint32
	interval string
	req      protocol.RRCMeasRequest

	mu     sync.RWMutex
	report *protocol.RRCMeasResponse
}

func (m *Module) Validate() error {
	if m.rnti == 0 {
		return module.Missing("rnti")
	}
	return nil
}

func (m *Module) Request() (protocol.Body, error) {
	req := m.req
	return &req, nil
}

func (m *Module) HandleResponse(msg *protocol.Message) error {
	resp, ok := msg.Body.(*protocol.RRCMeasResponse)
	if !ok {
		return errUnexpectedBody
	}
	m.mu.Lock()
	m.report = resp
	m.mu.Unlock()
	return nil
}

func (m *Module) Equal(other module.Module) bool {
	o, ok := other.(*Module)
	return ok && m.SameTarget(&o.Base) && m.rnti == o.rnti && m.req == o.req
}

// Matches accepts reports for this module's UE regardless of xid.
func (m *Module) Matches(msg *protocol.Message) bool {
	resp, ok := msg.Body.(*protocol.RRCMeasResponse)
	return ok && resp.RNTI == m.rnti
}

// Release drops the configuration this module recorded on its UE.
func (m *Module) Release() {
	if m.ue != nil {
		m.ue.RemoveMeasConfig(m.ID())
	}
}

func (m *Module) RNTI() uint32 { return m.rnti }

func (m *Module) ReportInterval() string { return m.interval }

func (m *Module) CarrierFrequency() uint32 { return m.req.CarrierFrequency }

// Report is the latest successful measurement report, or nil.
func (m *Module) Report() *protocol.RRCMeasResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

type Request struct {
	Tenant   uuid.UUID
	Agent    ran.EtherAddress
	RNTI     uint32
	Every    module.Recurrence
	Config   RequestConfig
	OnResult module.ResultFunc
}

type Worker struct {
	*module.Worker
	dir module.Directory
}

func NewWorker(dir module.Directory) *Worker {
	return &Worker{
		Worker: module.NewWorker(TypeName, protocol.KindRRCMeasResponse),
		dir:    dir,
	}
}

// Submit validates req, installs the module, and records the
// configuration on the UE. Off is rejected since a measurement has no
// cancel request; remove the module instead.
func (w *Worker) Submit(req Request) (*Module, error) {
	if err := req.Config.check(); err != nil {
		return nil, err
	}
	if req.Every.Mode == module.ModeOff {
		return nil, module.Invalid("every", "off is not supported for %s, remove the module instead", TypeName)
	}
	if req.RNTI == 0 {
		return nil, module.Missing("rnti")
	}
	agent, err := module.LookupAgent(w.dir, req.Tenant, req.Agent)
	if err != nil {
		return nil, err
	}
	ue, ok := agent.UE(req.RNTI)
	if !ok {
		return nil, module.NotFound("rnti", "agent %s has no UE with rnti %d", agent.Addr, req.RNTI)
	}

	interval := strings.TrimSpace(req.Config.ReportInterval)
	m := &Module{
		Base:     module.NewBase(TypeName, req.Tenant, agent, req.Every, req.OnResult),
		ue:       ue,
		rnti:     req.RNTI,
		interval: interval,
		req: protocol.RRCMeasRequest{
			RNTI:             req.RNTI,
			ReportInterval:   ReportIntervals[interval],
			CarrierFrequency: *req.Config.CarrierFrequency,
		},
	}
	installed, err := w.Add(m)
	if err != nil {
		return nil, err
	}
	meas := installed.(*Module)
	ue.SetMeasConfig(ran.MeasConfig{
		ModuleID:         meas.ID(),
		ReportInterval:   interval,
		CarrierFrequency: meas.CarrierFrequency(),
	})
	if !meas.Live() {
		ue.RemoveMeasConfig(meas.ID())
	}
	log.Info().Stringer("agent", agent.Addr).Uint32("rnti", req.RNTI).Uint32("id", meas.ID()).
		Msg("rrcmeas.Worker.Submit measurement configured")
	return meas, nil
}
