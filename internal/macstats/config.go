package macstats

import (
	"strings"

	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
)

// RequestConfig is the caller-facing description of a MAC statistics
// request. Pointer fields distinguish absent from zero.
type RequestConfig struct {
	ReportType      string        `json:"report_type" toml:"report_type"`
	ReportFrequency string        `json:"report_frequency" toml:"report_frequency"`
	Periodicity     *uint32       `json:"periodicity,omitempty" toml:"periodicity"`
	TimerXID        *uint32       `json:"timer_xid,omitempty" toml:"timer_xid"`
	ReportConfig    *ReportConfig `json:"report_config,omitempty" toml:"report_config"`
}

type ReportConfig struct {
	UE   *UEReportConfig   `json:"ue_report_type,omitempty" toml:"ue_report_type"`
	Cell *CellReportConfig `json:"cell_report_type,omitempty" toml:"cell_report_type"`
}

type UEReportConfig struct {
	Flags []string `json:"ue_report_flags" toml:"ue_report_flags"`
	RNTIs []uint32 `json:"ue_rnti,omitempty" toml:"ue_rnti"`
}

type CellReportConfig struct {
	Flags []string `json:"cell_report_flags" toml:"cell_report_flags"`
	CCIDs []uint32 `json:"cc_id,omitempty" toml:"cc_id"`
}

// checkHeader validates the fields that do not depend on the agent, in
// order: report type, frequency, periodicity, timer xid.
func (c RequestConfig) checkHeader(cat Catalog, timers *module.TimerRegistry) error {
	reportType := strings.TrimSpace(c.ReportType)
	if reportType == "" {
		return module.Missing("report_type")
	}
	if _, ok := cat.ReportTypes[reportType]; !ok {
		return module.Invalid("report_type", "unknown report type %q, want one of %v", reportType, names(cat.ReportTypes))
	}

	freq := strings.TrimSpace(c.ReportFrequency)
	if freq == "" {
		return module.Missing("report_frequency")
	}
	if _, ok := cat.Frequencies[freq]; !ok {
		return module.Invalid("report_frequency", "unknown frequency %q, want one of %v", freq, names(cat.Frequencies))
	}

	switch freq {
	case FrequencyPeriodical:
		if c.Periodicity == nil {
			return module.Missing("periodicity")
		}
		if *c.Periodicity == 0 {
			return module.Invalid("periodicity", "periodicity must be positive")
		}
	case FrequencyOff:
		if c.TimerXID == nil {
			return module.Missing("timer_xid")
		}
		if !timers.Contains(*c.TimerXID) {
			return module.Invalid("timer_xid", "no periodic request with xid %d", *c.TimerXID)
		}
	}
	return nil
}

// checkReport validates report_config against the agent, in order:
// report_config, ue_report_type, cell_report_type, ue flags, cell flags,
// cc ids, then UE RNTIs.
func (c RequestConfig) checkReport(cat Catalog, agent *ran.Agent) error {
	if c.ReportConfig == nil {
		return module.Missing("report_config")
	}
	ue, cell := c.ReportConfig.UE, c.ReportConfig.Cell
	if ue == nil {
		return module.Missing("ue_report_type")
	}
	if cell == nil {
		return module.Missing("cell_report_type")
	}

	reportType := strings.TrimSpace(c.ReportType)
	wantsUE := reportType == ReportComplete || reportType == ReportUE
	wantsCell := reportType == ReportComplete || reportType == ReportCell

	if wantsUE && len(ue.Flags) == 0 {
		return module.Missing("ue_report_flags")
	}
	if _, bad, ok := mask(cat.UEFlags, ue.Flags); !ok {
		return module.Invalid("ue_report_flags", "unknown flag %q, want one of %v", bad, names(cat.UEFlags))
	}
	if wantsCell && len(cell.Flags) == 0 {
		return module.Missing("cell_report_flags")
	}
	if _, bad, ok := mask(cat.CellFlags, cell.Flags); !ok {
		return module.Invalid("cell_report_flags", "unknown flag %q, want one of %v", bad, names(cat.CellFlags))
	}

	if reportType == ReportCell {
		if len(cell.CCIDs) == 0 {
			return module.Missing("cc_id")
		}
		for _, cc := range cell.CCIDs {
			if cc >= cat.MaxComponentCarriers {
				return module.Invalid("cc_id", "component carrier %d out of range, max %d", cc, cat.MaxComponentCarriers)
			}
		}
	}

	if reportType == ReportUE {
		if agent.UECount() == 0 {
			return module.Invalid("ue_rnti", "agent %s has no UEs", agent.Addr)
		}
		if len(ue.RNTIs) == 0 {
			return module.Missing("ue_rnti")
		}
		for _, rnti := range ue.RNTIs {
			if _, ok := agent.UE(rnti); !ok {
				return module.Invalid("ue_rnti", "agent %s has no UE with rnti %d", agent.Addr, rnti)
			}
		}
	}
	return nil
}

// request builds the wire body for a validated configuration.
func (c RequestConfig) request(cat Catalog) *protocol.StatsRequest {
	reportType := strings.TrimSpace(c.ReportType)
	freq := strings.TrimSpace(c.ReportFrequency)
	req := &protocol.StatsRequest{
		ReportType:      cat.ReportTypes[reportType],
		ReportFrequency: cat.Frequencies[freq],
	}
	if c.Periodicity != nil {
		req.Periodicity = *c.Periodicity
	}
	if freq == FrequencyOff || c.ReportConfig == nil {
		return req
	}
	if ue := c.ReportConfig.UE; ue != nil && reportType != ReportCell {
		req.UEReportFlags, _, _ = mask(cat.UEFlags, ue.Flags)
		if reportType == ReportUE {
			req.RNTIs = append([]uint32(nil), ue.RNTIs...)
		}
	}
	if cell := c.ReportConfig.Cell; cell != nil && reportType != ReportUE {
		req.CellReportFlags, _, _ = mask(cat.CellFlags, cell.Flags)
		if reportType == ReportCell {
			req.CCIDs = append([]uint32(nil), cell.CCIDs...)
		}
	}
	return req
}
