package protocol

type Hello struct {
	// Period is the agent's own hello interval in milliseconds, if advertised.
	Period uint32
}

type Bye struct{}

type EchoRequest struct{}

type EchoReply struct{}

type ConfigRequest struct{}

type CellConfig struct {
	CellID    uint32
	PCI       uint32
	DLEarfcn  uint32
	ULEarfcn  uint32
	DLBandPRB uint32
	ULBandPRB uint32
}

type ConfigReply struct {
	EnbID uint64
	Cells []CellConfig
}

// UEStateChangeType values follow the agent's reporting enum.
type UEStateChangeType uint32

const (
	UEStateUpdated UEStateChangeType = iota
	UEStateActivated
	UEStateDeactivated
	UEStateMoved
)

func (t UEStateChangeType) String() string {
	switch t {
	case UEStateUpdated:
		return "updated"
	case UEStateActivated:
		return "activated"
	case UEStateDeactivated:
		return "deactivated"
	case UEStateMoved:
		return "moved"
	default:
		return "unknown"
	}
}

type UECapabilities struct {
	HalfDuplex     bool
	IntraSFHopping bool
	Type2SB1       bool
	Category       uint32
	ResAllocType1  bool
}

type UEConfig struct {
	RNTI             uint32
	IMSI             uint64
	TransmissionMode uint32
	Capabilities     *UECapabilities
}

type UEStateChange struct {
	Type   UEStateChangeType
	Config UEConfig
}

type StatsRequest struct {
	ReportType      uint32
	ReportFrequency uint32
	Periodicity     uint32
	CellReportFlags uint32
	UEReportFlags   uint32
	CCIDs           []uint32
	RNTIs           []uint32
}

type UEStatsReport struct {
	RNTI              uint32
	Flags             uint32
	BSR               []uint32
	PHR               int32
	DLWidebandCQI     uint32
	ULWidebandCQI     uint32
	RLCTxQueueSize    uint32
	PendingPagingSize uint32
}

type CellStatsReport struct {
	CarrierIndex      uint32
	Flags             uint32
	NoiseInterference int32
}

type StatsResponse struct {
	Status      Status
	Detail      string
	UEReports   []UEStatsReport
	CellReports []CellStatsReport
}

type RRCMeasRequest struct {
	RNTI             uint32
	ReportInterval   uint32
	CarrierFrequency uint32
}

type NeighborMeasurement struct {
	RAT        string
	PhysCellID uint32
	RSRP       int32
	RSRQ       int32
}

type RRCMeasResponse struct {
	Status    Status
	Detail    string
	RNTI      uint32
	MeasID    uint32
	PCellRSRP int32
	PCellRSRQ int32
	Neighbors []NeighborMeasurement
}

func (*Hello) Kind() Kind           { return KindHello }
func (*Bye) Kind() Kind             { return KindBye }
func (*EchoRequest) Kind() Kind     { return KindEchoRequest }
func (*EchoReply) Kind() Kind       { return KindEchoReply }
func (*ConfigRequest) Kind() Kind   { return KindConfigRequest }
func (*ConfigReply) Kind() Kind     { return KindConfigReply }
func (*UEStateChange) Kind() Kind   { return KindUEStateChange }
func (*StatsRequest) Kind() Kind    { return KindStatsRequest }
func (*StatsResponse) Kind() Kind   { return KindStatsResponse }
func (*RRCMeasRequest) Kind() Kind  { return KindRRCMeasRequest }
func (*RRCMeasResponse) Kind() Kind { return KindRRCMeasResponse }

func (r *StatsResponse) Outcome() (Status, string)   { return r.Status, r.Detail }
func (r *RRCMeasResponse) Outcome() (Status, string) { return r.Status, r.Detail }

// newBody returns an empty body for k.
func newBody(k Kind) (Body, bool) {
	switch k {
	case KindHello:
		return &Hello{}, true
	case KindBye:
		return &Bye{}, true
	case KindEchoRequest:
		return &EchoRequest{}, true
	case KindEchoReply:
		return &EchoReply{}, true
	case KindConfigRequest:
		return &ConfigRequest{}, true
	case KindConfigReply:
		return &ConfigReply{}, true
	case KindUEStateChange:
		return &UEStateChange{}, true
	case KindStatsRequest:
		return &StatsRequest{}, true
	case KindStatsResponse:
		return &StatsResponse{}, true
	case KindRRCMeasRequest:
		return &RRCMeasRequest{}, true
	case KindRRCMeasResponse:
		return &RRCMeasResponse{}, true
	default:
		return nil, false
	}
}
