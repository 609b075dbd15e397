package macstats

import (
	"sort"

	"github.com/danmuck/ranctl/internal/protocol"
)

const (
	ReportComplete = "complete"
	ReportCell     = "cell"
	ReportUE       = "ue"

	FrequencyOnce       = "once"
	FrequencyPeriodical = "periodical"
	FrequencyOff        = "off"
)

// Catalog holds the closed enumerations a request is checked against.
type Catalog struct {
	ReportTypes          map[string]uint32
	Frequencies          map[string]uint32
	CellFlags            map[string]uint32
	UEFlags              map[string]uint32
	MaxComponentCarriers uint32
}

func DefaultCatalog() Catalog {
	return Catalog{
		ReportTypes: map[string]uint32{
			ReportComplete: protocol.ReportTypeComplete,
			ReportCell:     protocol.ReportTypeCell,
			ReportUE:       protocol.ReportTypeUE,
		},
		Frequencies: map[string]uint32{
			FrequencyOnce:       protocol.ReportFrequencyOnce,
			FrequencyPeriodical: protocol.ReportFrequencyPeriodical,
			FrequencyOff:        protocol.ReportFrequencyOff,
		},
		CellFlags: map[string]uint32{
			"noise_interference": protocol.CellFlagNoiseInterference,
		},
		UEFlags: map[string]uint32{
			"buffer_status_report":        protocol.UEFlagBSR,
			"power_headroom_report":       protocol.UEFlagPHR,
			"rlc_buffer_status_report":    protocol.UEFlagRLCBSR,
			"mac_ce_buffer_status_report": protocol.UEFlagMACCEBSR,
			"downlink_cqi_report":         protocol.UEFlagDLCQI,
			"paging_buffer_status_report": protocol.UEFlagPagingBSR,
			"uplink_cqi_report":           protocol.UEFlagULCQI,
		},
		MaxComponentCarriers: 1,
	}
}

// mask ORs the codes of flags. ok is false on the first unknown flag.
func mask(table map[string]uint32, flags []string) (uint32, string, bool) {
	var m uint32
	for _, f := range flags {
		code, known := table[f]
		if !known {
			return 0, f, false
		}
		m |= code
	}
	return m, "", true
}

func names(table map[string]uint32) []string {
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
