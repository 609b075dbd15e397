package protocol

import (
	"fmt"
	"io"

	"github.com/danmuck/ranctl/internal/protocol/frame"
)

// Unmarshal decodes one frame body. Unknown non-body fields are skipped.
func Unmarshal(b []byte) (*Message, error) {
	if len(b) == 0 {
		return nil, ErrEmptyMessage
	}

	msg := &Message{}
	sawHeader := false
	err := readFields(b, func(f field) error {
		switch {
		case f.num == fieldHeader:
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			sawHeader = true
			return decodeHeader(raw, &msg.Header)
		case f.num == fieldDirection:
			v, err := f.uint32()
			msg.Direction = Direction(v)
			return err
		case f.num >= bodyFieldBase:
			kind := Kind(f.num - bodyFieldBase)
			body, ok := newBody(kind)
			if !ok {
				return fmt.Errorf("%w: body field %d", ErrUnknownKind, f.num)
			}
			if msg.Body != nil {
				return fmt.Errorf("%w: more than one body", ErrMalformed)
			}
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			if err := body.(wireBody).decode(raw); err != nil {
				return fmt.Errorf("decode %s: %w", kind, err)
			}
			msg.Body = body
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, ErrMissingHeader
	}
	if msg.Body == nil {
		return nil, ErrMissingBody
	}
	if msg.Header.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, msg.Header.Version)
	}
	if msg.Header.Type != msg.Body.Kind() {
		return nil, fmt.Errorf("%w: header=%s body=%s", ErrMessageTypeMismatch, msg.Header.Type, msg.Body.Kind())
	}
	return msg, nil
}

// Decode reads one length-prefixed frame from r and decodes it.
func Decode(r io.Reader, limits frame.Limits) (*Message, error) {
	body, err := frame.ReadFrame(r, limits)
	if err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

func decodeHeader(b []byte, h *Header) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case headerVersion:
			h.Version, err = f.uint32()
		case headerType:
			var v uint32
			v, err = f.uint32()
			h.Type = Kind(v)
		case headerXID:
			h.XID, err = f.uint32()
		case headerAgentID:
			h.AgentID, err = f.uint64()
		}
		return err
	})
}

func (h *Hello) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		if f.num == 1 {
			h.Period, err = f.uint32()
		}
		return err
	})
}

func (*Bye) decode(b []byte) error           { return readFields(b, skipField) }
func (*EchoRequest) decode(b []byte) error   { return readFields(b, skipField) }
func (*EchoReply) decode(b []byte) error     { return readFields(b, skipField) }
func (*ConfigRequest) decode(b []byte) error { return readFields(b, skipField) }

func skipField(field) error { return nil }

func (c *CellConfig) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			c.CellID, err = f.uint32()
		case 2:
			c.PCI, err = f.uint32()
		case 3:
			c.DLEarfcn, err = f.uint32()
		case 4:
			c.ULEarfcn, err = f.uint32()
		case 5:
			c.DLBandPRB, err = f.uint32()
		case 6:
			c.ULBandPRB, err = f.uint32()
		}
		return err
	})
}

func (r *ConfigReply) decode(b []byte) error {
	return readFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.uint64()
			r.EnbID = v
			return err
		case 2:
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			var cell CellConfig
			if err := cell.decode(raw); err != nil {
				return err
			}
			r.Cells = append(r.Cells, cell)
		}
		return nil
	})
}

func (c *UECapabilities) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			c.HalfDuplex, err = f.boolean()
		case 2:
			c.IntraSFHopping, err = f.boolean()
		case 3:
			c.Type2SB1, err = f.boolean()
		case 4:
			c.Category, err = f.uint32()
		case 5:
			c.ResAllocType1, err = f.boolean()
		}
		return err
	})
}

func (c *UEConfig) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			c.RNTI, err = f.uint32()
		case 2:
			c.IMSI, err = f.uint64()
		case 3:
			c.TransmissionMode, err = f.uint32()
		case 4:
			var raw []byte
			if raw, err = f.bytes(); err != nil {
				return err
			}
			caps := &UECapabilities{}
			if err = caps.decode(raw); err != nil {
				return err
			}
			c.Capabilities = caps
		}
		return err
	})
}

func (u *UEStateChange) decode(b []byte) error {
	return readFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.uint32()
			u.Type = UEStateChangeType(v)
			return err
		case 2:
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			return u.Config.decode(raw)
		}
		return nil
	})
}

func (r *StatsRequest) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.ReportType, err = f.uint32()
		case 2:
			r.ReportFrequency, err = f.uint32()
		case 3:
			r.Periodicity, err = f.uint32()
		case 4:
			r.CellReportFlags, err = f.uint32()
		case 5:
			r.UEReportFlags, err = f.uint32()
		case 6:
			r.CCIDs, err = f.appendUint32s(r.CCIDs)
		case 7:
			r.RNTIs, err = f.appendUint32s(r.RNTIs)
		}
		return err
	})
}

func (r *UEStatsReport) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.RNTI, err = f.uint32()
		case 2:
			r.Flags, err = f.uint32()
		case 3:
			r.BSR, err = f.appendUint32s(r.BSR)
		case 4:
			r.PHR, err = f.sint32()
		case 5:
			r.DLWidebandCQI, err = f.uint32()
		case 6:
			r.ULWidebandCQI, err = f.uint32()
		case 7:
			r.RLCTxQueueSize, err = f.uint32()
		case 8:
			r.PendingPagingSize, err = f.uint32()
		}
		return err
	})
}

func (r *CellStatsReport) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.CarrierIndex, err = f.uint32()
		case 2:
			r.Flags, err = f.uint32()
		case 3:
			r.NoiseInterference, err = f.sint32()
		}
		return err
	})
}

func (r *StatsResponse) decode(b []byte) error {
	return readFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.uint32()
			r.Status = Status(v)
			return err
		case 2:
			v, err := f.str()
			r.Detail = v
			return err
		case 3:
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			var ue UEStatsReport
			if err := ue.decode(raw); err != nil {
				return err
			}
			r.UEReports = append(r.UEReports, ue)
		case 4:
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			var cell CellStatsReport
			if err := cell.decode(raw); err != nil {
				return err
			}
			r.CellReports = append(r.CellReports, cell)
		}
		return nil
	})
}

func (r *RRCMeasRequest) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.RNTI, err = f.uint32()
		case 2:
			r.ReportInterval, err = f.uint32()
		case 3:
			r.CarrierFrequency, err = f.uint32()
		}
		return err
	})
}

func (n *NeighborMeasurement) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			n.RAT, err = f.str()
		case 2:
			n.PhysCellID, err = f.uint32()
		case 3:
			n.RSRP, err = f.sint32()
		case 4:
			n.RSRQ, err = f.sint32()
		}
		return err
	})
}

func (r *RRCMeasResponse) decode(b []byte) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var v uint32
			v, err = f.uint32()
			r.Status = Status(v)
		case 2:
			r.Detail, err = f.str()
		case 3:
			r.RNTI, err = f.uint32()
		case 4:
			r.MeasID, err = f.uint32()
		case 5:
			r.PCellRSRP, err = f.sint32()
		case 6:
			r.PCellRSRQ, err = f.sint32()
		case 7:
			var raw []byte
			if raw, err = f.bytes(); err != nil {
				return err
			}
			var n NeighborMeasurement
			if err = n.decode(raw); err != nil {
				return err
			}
			r.Neighbors = append(r.Neighbors, n)
		}
		return err
	})
}
