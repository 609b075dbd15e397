package protocol

// MAC statistics report types.
const (
	ReportTypeComplete uint32 = 0
	ReportTypeCell     uint32 = 1
	ReportTypeUE       uint32 = 2
)

// MAC statistics report frequencies.
const (
	ReportFrequencyOnce       uint32 = 1
	ReportFrequencyPeriodical uint32 = 2
	ReportFrequencyOff        uint32 = 4
)

// Cell report flags.
const (
	CellFlagNoiseInterference uint32 = 1
)

// UE report flags.
const (
	UEFlagBSR       uint32 = 1
	UEFlagPHR       uint32 = 2
	UEFlagRLCBSR    uint32 = 4
	UEFlagMACCEBSR  uint32 = 8
	UEFlagDLCQI     uint32 = 16
	UEFlagPagingBSR uint32 = 32
	UEFlagULCQI     uint32 = 64
)

// RRC report interval codes. Only intervals the controller accepts are listed.
const (
	ReportInterval480ms   uint32 = 2
	ReportInterval640ms   uint32 = 3
	ReportInterval1024ms  uint32 = 4
	ReportInterval2048ms  uint32 = 5
	ReportInterval5120ms  uint32 = 6
	ReportInterval10240ms uint32 = 7
	ReportInterval1min    uint32 = 8
	ReportInterval6min    uint32 = 9
	ReportInterval12min   uint32 = 10
	ReportInterval30min   uint32 = 11
	ReportInterval60min   uint32 = 12
)
