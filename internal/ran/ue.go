package ran

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/ranctl/internal/protocol"
)

// MeasConfig is one RRC measurement configuration pushed to a UE.
type MeasConfig struct {
	ModuleID         uint32 `json:"module_id"`
	ReportInterval   string `json:"report_interval"`
	CarrierFrequency uint32 `json:"carrier_frequency"`
}

// CellMeasurement is the latest RSRP/RSRQ seen for one cell.
type CellMeasurement struct {
	MeasID     uint32    `json:"meas_id"`
	PhysCellID uint32    `json:"phys_cell_id"`
	RAT        string    `json:"rat,omitempty"`
	RSRP       int32     `json:"rsrp"`
	RSRQ       int32     `json:"rsrq"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UE is a user equipment attached to an agent, keyed by RNTI. Addr is
// the RNTI rendered as an address.
type UE struct {
	RNTI  uint32
	Addr  EtherAddress
	IMSI  uint64
	Agent EtherAddress

	mu          sync.RWMutex
	txMode      uint32
	caps        protocol.UECapabilities
	measConfigs map[uint32]MeasConfig
	serving     *CellMeasurement
	neighbors   map[uint32]CellMeasurement
}

func NewUE(agent EtherAddress, cfg protocol.UEConfig) *UE {
	ue := &UE{
		RNTI:        cfg.RNTI,
		Addr:        MustAddress(uint64(cfg.RNTI)),
		IMSI:        cfg.IMSI,
		Agent:       agent,
		txMode:      cfg.TransmissionMode,
		measConfigs: make(map[uint32]MeasConfig),
		neighbors:   make(map[uint32]CellMeasurement),
	}
	if cfg.Capabilities != nil {
		ue.caps = *cfg.Capabilities
	}
	return ue
}

// Update applies a refreshed UE configuration reported by the agent.
func (u *UE) Update(cfg protocol.UEConfig) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.txMode = cfg.TransmissionMode
	if cfg.Capabilities != nil {
		u.caps = *cfg.Capabilities
	}
}

func (u *UE) Capabilities() protocol.UECapabilities {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.caps
}

// Equal compares identity, not measurement state.
func (u *UE) Equal(other *UE) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.RNTI == other.RNTI && u.Agent == other.Agent
}

func (u *UE) TransmissionMode() uint32 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.txMode
}

// SetMeasConfig records the configuration owned by cfg.ModuleID.
func (u *UE) SetMeasConfig(cfg MeasConfig) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.measConfigs[cfg.ModuleID] = cfg
}

// RemoveMeasConfig drops the configuration owned by moduleID.
func (u *UE) RemoveMeasConfig(moduleID uint32) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.measConfigs[moduleID]; !ok {
		return false
	}
	delete(u.measConfigs, moduleID)
	return true
}

func (u *UE) MeasConfigs() map[uint32]MeasConfig {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[uint32]MeasConfig, len(u.measConfigs))
	for k, v := range u.measConfigs {
		out[k] = v
	}
	return out
}

// ApplyMeasurements overwrites the serving cell readings and merges
// neighbors by physical cell id. The latest report wins per cell.
func (u *UE) ApplyMeasurements(resp *protocol.RRCMeasResponse, at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.serving = &CellMeasurement{MeasID: resp.MeasID, RSRP: resp.PCellRSRP, RSRQ: resp.PCellRSRQ, UpdatedAt: at}
	for _, n := range resp.Neighbors {
		u.neighbors[n.PhysCellID] = CellMeasurement{
			MeasID:     resp.MeasID,
			PhysCellID: n.PhysCellID,
			RAT:        n.RAT,
			RSRP:       n.RSRP,
			RSRQ:       n.RSRQ,
			UpdatedAt:  at,
		}
	}
}

func (u *UE) Serving() (CellMeasurement, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.serving == nil {
		return CellMeasurement{}, false
	}
	return *u.serving, true
}

// Neighbors returns neighbor readings ordered by physical cell id.
func (u *UE) Neighbors() []CellMeasurement {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]CellMeasurement, 0, len(u.neighbors))
	for _, n := range u.neighbors {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhysCellID < out[j].PhysCellID })
	return out
}

type UESnapshot struct {
	RNTI         uint32                  `json:"rnti"`
	Addr         EtherAddress            `json:"addr"`
	IMSI         uint64                  `json:"imsi,omitempty"`
	Agent        EtherAddress            `json:"agent"`
	Capabilities protocol.UECapabilities `json:"capabilities"`
	MeasConfigs  []MeasConfig            `json:"meas_configs"`
	Serving      *CellMeasurement        `json:"serving,omitempty"`
	Neighbors    []CellMeasurement       `json:"neighbors"`
}

func (u *UE) Snapshot() UESnapshot {
	snap := UESnapshot{
		RNTI:         u.RNTI,
		Addr:         u.Addr,
		IMSI:         u.IMSI,
		Agent:        u.Agent,
		Capabilities: u.Capabilities(),
		Neighbors:    u.Neighbors(),
	}
	configs := u.MeasConfigs()
	snap.MeasConfigs = make([]MeasConfig, 0, len(configs))
	for _, c := range configs {
		snap.MeasConfigs = append(snap.MeasConfigs, c)
	}
	sort.Slice(snap.MeasConfigs, func(i, j int) bool {
		return snap.MeasConfigs[i].ModuleID < snap.MeasConfigs[j].ModuleID
	})
	if s, ok := u.Serving(); ok {
		snap.Serving = &s
	}
	return snap
}
