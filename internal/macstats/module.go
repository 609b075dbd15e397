package macstats

import (
	"errors"
	"sync"

	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/protocol"
)

const TypeName = "mac_stats"

var errUnexpectedBody = errors.New("macstats: unexpected response body")

// Module is one MAC statistics request bound to an agent.
type Module struct {
	module.Base
	cfg RequestConfig
	req *protocol.StatsRequest

	mu    sync.RWMutex
	reply *protocol.StatsResponse
}

func (m *Module) Validate() error {
	if m.req == nil {
		return module.Missing("stats_request_config")
	}
	return nil
}

func (m *Module) Request() (protocol.Body, error) {
	req := *m.req
	req.CCIDs = append([]uint32(nil), m.req.CCIDs...)
	req.RNTIs = append([]uint32(nil), m.req.RNTIs...)
	return &req, nil
}

func (m *Module) HandleResponse(msg *protocol.Message) error {
	resp, ok := msg.Body.(*protocol.StatsResponse)
	if !ok {
		return errUnexpectedBody
	}
	m.mu.Lock()
	m.reply = resp
	m.mu.Unlock()
	return nil
}

// Equal is always false: identical statistics requests may coexist.
func (m *Module) Equal(module.Module) bool {
	return false
}

// Complete retires one-shot requests after their first report.
func (m *Module) Complete() bool {
	return m.req.ReportFrequency == protocol.ReportFrequencyOnce && m.Recurrence().Mode == module.ModeOnce
}

func (m *Module) Config() RequestConfig {
	return m.cfg
}

// Reply is the most recent successful report, or nil.
func (m *Module) Reply() *protocol.StatsResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reply
}
