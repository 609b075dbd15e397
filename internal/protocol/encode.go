package protocol

import (
	"io"

	"github.com/danmuck/ranctl/internal/protocol/frame"
	"google.golang.org/protobuf/encoding/protowire"
)

// Top-level field numbers. The body travels in field bodyFieldBase+kind
// so the kind is recoverable even when the header is damaged.
const (
	fieldHeader    protowire.Number = 1
	fieldDirection protowire.Number = 2
	bodyFieldBase  protowire.Number = 16
)

const (
	headerVersion protowire.Number = 1
	headerType    protowire.Number = 2
	headerXID     protowire.Number = 3
	headerAgentID protowire.Number = 4
)

type wireBody interface {
	Body
	encode(w *writer)
	decode(b []byte) error
}

// Marshal encodes msg into a frame body without the length prefix.
func Marshal(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrEmptyMessage
	}
	if msg.Body == nil {
		return nil, ErrMissingBody
	}
	body, ok := msg.Body.(wireBody)
	if !ok {
		return nil, ErrUnknownKind
	}
	kind := body.Kind()
	if msg.Header.Type != 0 && msg.Header.Type != kind {
		return nil, ErrMessageTypeMismatch
	}

	head := msg.Header
	head.Type = kind
	if head.Version == 0 {
		head.Version = Version
	}

	var w writer
	w.message(fieldHeader, func(hw *writer) {
		hw.uint(headerVersion, uint64(head.Version))
		hw.uint(headerType, uint64(head.Type))
		hw.uint(headerXID, uint64(head.XID))
		hw.uint(headerAgentID, head.AgentID)
	})
	w.uint(fieldDirection, uint64(msg.Direction))
	w.message(bodyFieldBase+protowire.Number(kind), body.encode)
	return w.b, nil
}

// AppendFrame appends the length-prefixed encoding of msg to dst.
func AppendFrame(dst []byte, msg *Message) ([]byte, error) {
	body, err := Marshal(msg)
	if err != nil {
		return dst, err
	}
	return frame.Append(dst, body), nil
}

// Encode writes msg to w as one length-prefixed frame.
func Encode(w io.Writer, msg *Message, limits frame.Limits) error {
	body, err := Marshal(msg)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, body, limits)
}

func (h *Hello) encode(w *writer) { w.uint(1, uint64(h.Period)) }

func (*Bye) encode(*writer)           {}
func (*EchoRequest) encode(*writer)   {}
func (*EchoReply) encode(*writer)     {}
func (*ConfigRequest) encode(*writer) {}

func (c CellConfig) encode(w *writer) {
	w.uint(1, uint64(c.CellID))
	w.uint(2, uint64(c.PCI))
	w.uint(3, uint64(c.DLEarfcn))
	w.uint(4, uint64(c.ULEarfcn))
	w.uint(5, uint64(c.DLBandPRB))
	w.uint(6, uint64(c.ULBandPRB))
}

func (r *ConfigReply) encode(w *writer) {
	w.uint(1, r.EnbID)
	for _, cell := range r.Cells {
		w.message(2, cell.encode)
	}
}

func (c *UECapabilities) encode(w *writer) {
	w.boolean(1, c.HalfDuplex)
	w.boolean(2, c.IntraSFHopping)
	w.boolean(3, c.Type2SB1)
	w.uint(4, uint64(c.Category))
	w.boolean(5, c.ResAllocType1)
}

func (c UEConfig) encode(w *writer) {
	w.uint(1, uint64(c.RNTI))
	w.uint(2, c.IMSI)
	w.uint(3, uint64(c.TransmissionMode))
	if c.Capabilities != nil {
		w.message(4, c.Capabilities.encode)
	}
}

func (u *UEStateChange) encode(w *writer) {
	w.uint(1, uint64(u.Type))
	w.message(2, u.Config.encode)
}

func (r *StatsRequest) encode(w *writer) {
	w.uint(1, uint64(r.ReportType))
	w.uint(2, uint64(r.ReportFrequency))
	w.uint(3, uint64(r.Periodicity))
	w.uint(4, uint64(r.CellReportFlags))
	w.uint(5, uint64(r.UEReportFlags))
	w.packed(6, r.CCIDs)
	w.packed(7, r.RNTIs)
}

func (r UEStatsReport) encode(w *writer) {
	w.uint(1, uint64(r.RNTI))
	w.uint(2, uint64(r.Flags))
	w.packed(3, r.BSR)
	w.sint(4, r.PHR)
	w.uint(5, uint64(r.DLWidebandCQI))
	w.uint(6, uint64(r.ULWidebandCQI))
	w.uint(7, uint64(r.RLCTxQueueSize))
	w.uint(8, uint64(r.PendingPagingSize))
}

func (r CellStatsReport) encode(w *writer) {
	w.uint(1, uint64(r.CarrierIndex))
	w.uint(2, uint64(r.Flags))
	w.sint(3, r.NoiseInterference)
}

func (r *StatsResponse) encode(w *writer) {
	w.uint(1, uint64(r.Status))
	w.str(2, r.Detail)
	for _, ue := range r.UEReports {
		w.message(3, ue.encode)
	}
	for _, cell := range r.CellReports {
		w.message(4, cell.encode)
	}
}

func (r *RRCMeasRequest) encode(w *writer) {
	w.uint(1, uint64(r.RNTI))
	w.uint(2, uint64(r.ReportInterval))
	w.uint(3, uint64(r.CarrierFrequency))
}

func (n NeighborMeasurement) encode(w *writer) {
	w.str(1, n.RAT)
	w.uint(2, uint64(n.PhysCellID))
	w.sint(3, n.RSRP)
	w.sint(4, n.RSRQ)
}

func (r *RRCMeasResponse) encode(w *writer) {
	w.uint(1, uint64(r.Status))
	w.str(2, r.Detail)
	w.uint(3, uint64(r.RNTI))
	w.uint(4, uint64(r.MeasID))
	w.sint(5, r.PCellRSRP)
	w.sint(6, r.PCellRSRQ)
	for _, n := range r.Neighbors {
		w.message(7, n.encode)
	}
}
