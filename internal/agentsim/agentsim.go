// Package agentsim is a fake base station agent. It dials a controller,
// keeps the link alive with HELLOs, answers controller requests with
// synthetic data, and reports UE attach and detach events.
package agentsim

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/protocol/frame"
	"github.com/danmuck/ranctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("agentsim: controller address required")
	ErrAgentIDRequired = errors.New("agentsim: agent id required")
	ErrNotConnected    = errors.New("agentsim: not connected")
)

type Config struct {
	Address string
	AgentID uint64
	// HelloPeriod is how often a HELLO is sent once connected.
	HelloPeriod        time.Duration
	Cells              []protocol.CellConfig
	UEs                []protocol.UEConfig
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		HelloPeriod: 2 * time.Second,
		Cells: []protocol.CellConfig{{
			CellID:    1,
			PCI:       1,
			DLEarfcn:  3400,
			ULEarfcn:  21400,
			DLBandPRB: 25,
			ULBandPRB: 25,
		}},
		Session:            session.DefaultConfig(),
		MaxConnectAttempts: 5,
	}
}

// Agent is one simulated eNB.
type Agent struct {
	cfg   Config
	rngMu sync.Mutex
	rng   *rand.Rand

	// Received carries every message read from the controller. Messages
	// are dropped when nobody drains it.
	Received chan *protocol.Message

	writeMu sync.Mutex
	xid     atomic.Uint32
	measID  atomic.Uint32

	mu       sync.Mutex
	conn     net.Conn
	ues      map[uint32]protocol.UEConfig
	periodic map[uint32]context.CancelFunc
}

func New(cfg Config) (*Agent, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if cfg.AgentID == 0 {
		return nil, ErrAgentIDRequired
	}
	def := DefaultConfig()
	if cfg.HelloPeriod <= 0 {
		cfg.HelloPeriod = def.HelloPeriod
	}
	if len(cfg.Cells) == 0 {
		cfg.Cells = def.Cells
	}
	cfg.Session = cfg.Session.Normalize()
	a := &Agent{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		Received: make(chan *protocol.Message, 64),
		ues:      make(map[uint32]protocol.UEConfig),
		periodic: make(map[uint32]context.CancelFunc),
	}
	for _, ue := range cfg.UEs {
		a.ues[ue.RNTI] = ue
	}
	return a, nil
}

// Connect dials the controller with backoff and sends the first HELLO.
func (a *Agent) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: a.cfg.Session.ConnectTimeout}
	err := session.Retry(ctx, a.cfg.Session.Backoff, a.cfg.MaxConnectAttempts, a.rng, func(attempt int) error {
		conn, err := dialer.DialContext(ctx, "tcp", a.cfg.Address)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("addr", a.cfg.Address).Msg("agentsim.Agent.Connect dial failed")
			return err
		}
		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("addr", a.cfg.Address).Uint64("agent_id", a.cfg.AgentID).Msg("agentsim.Agent.Connect connected")
	return a.Hello()
}

// Run reads controller requests and sends HELLOs until ctx ends, Close
// or Bye is called, or the link drops. Configured UEs are announced after
// the first HELLO.
func (a *Agent) Run(ctx context.Context) error {
	conn := a.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	for _, ue := range a.UEs() {
		if err := a.sendUEState(protocol.UEStateActivated, ue); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.helloLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = a.Close()
	}()

	reader := frame.NewReader(conn, a.cfg.Session.Limits)
	for {
		body, err := reader.Next()
		if errors.Is(err, frame.ErrEmptyFrame) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil || a.currentConn() == nil {
				return nil
			}
			return err
		}
		msg, err := protocol.Unmarshal(body)
		if err != nil {
			log.Warn().Err(err).Msg("agentsim.Agent.Run decode failed")
			continue
		}
		a.handle(ctx, msg)
		select {
		case a.Received <- msg:
		default:
		}
	}
}

func (a *Agent) helloLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HelloPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Hello(); err != nil {
				log.Debug().Err(err).Msg("agentsim.Agent.helloLoop send failed")
				return
			}
		}
	}
}

func (a *Agent) handle(ctx context.Context, msg *protocol.Message) {
	xid := msg.Header.XID
	var err error
	switch body := msg.Body.(type) {
	case *protocol.EchoRequest:
		err = a.send(xid, protocol.DirectionSuccessfulOutcome, &protocol.EchoReply{})
	case *protocol.ConfigRequest:
		err = a.send(xid, protocol.DirectionSuccessfulOutcome, &protocol.ConfigReply{
			EnbID: a.cfg.AgentID,
			Cells: append([]protocol.CellConfig(nil), a.cfg.Cells...),
		})
	case *protocol.StatsRequest:
		err = a.handleStats(ctx, xid, body)
	case *protocol.RRCMeasRequest:
		err = a.send(xid, protocol.DirectionSuccessfulOutcome, a.measure(body))
	case *protocol.Bye:
		_ = a.Close()
	}
	if err != nil {
		log.Warn().Err(err).Stringer("kind", msg.Kind()).Uint32("xid", xid).Msg("agentsim.Agent.handle reply failed")
	}
}

// handleStats answers once, starts a periodic report keyed by xid, or
// stops the periodic report named by xid.
func (a *Agent) handleStats(ctx context.Context, xid uint32, req *protocol.StatsRequest) error {
	switch req.ReportFrequency {
	case protocol.ReportFrequencyOff:
		a.mu.Lock()
		stop, ok := a.periodic[xid]
		delete(a.periodic, xid)
		a.mu.Unlock()
		if ok {
			stop()
		}
		return nil
	case protocol.ReportFrequencyPeriodical:
		every := time.Duration(req.Periodicity) * time.Millisecond
		if every <= 0 {
			every = time.Second
		}
		pctx, stop := context.WithCancel(ctx)
		a.mu.Lock()
		if prev, ok := a.periodic[xid]; ok {
			prev()
		}
		a.periodic[xid] = stop
		a.mu.Unlock()
		go func() {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-pctx.Done():
					return
				case <-ticker.C:
					if err := a.send(xid, protocol.DirectionSuccessfulOutcome, a.stats(req)); err != nil {
						return
					}
				}
			}
		}()
	}
	return a.send(xid, protocol.DirectionSuccessfulOutcome, a.stats(req))
}

// PeriodicReports lists the xids of running periodic stats reports.
func (a *Agent) PeriodicReports() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint32, 0, len(a.periodic))
	for xid := range a.periodic {
		out = append(out, xid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *Agent) stats(req *protocol.StatsRequest) *protocol.StatsResponse {
	resp := &protocol.StatsResponse{}
	if req.ReportType == protocol.ReportTypeComplete || req.ReportType == protocol.ReportTypeCell {
		ccs := req.CCIDs
		if len(ccs) == 0 {
			ccs = []uint32{0}
		}
		for _, cc := range ccs {
			resp.CellReports = append(resp.CellReports, protocol.CellStatsReport{
				CarrierIndex:      cc,
				Flags:             req.CellReportFlags,
				NoiseInterference: -100 - int32(a.intn(20)),
			})
		}
	}
	if req.ReportType == protocol.ReportTypeComplete || req.ReportType == protocol.ReportTypeUE {
		rntis := req.RNTIs
		if len(rntis) == 0 {
			for _, ue := range a.UEs() {
				rntis = append(rntis, ue.RNTI)
			}
		}
		for _, rnti := range rntis {
			report := protocol.UEStatsReport{RNTI: rnti, Flags: req.UEReportFlags}
			if req.UEReportFlags&protocol.UEFlagBSR != 0 {
				report.BSR = []uint32{uint32(a.intn(64)), 0, 0, 0}
			}
			if req.UEReportFlags&protocol.UEFlagPHR != 0 {
				report.PHR = int32(a.intn(40)) - 23
			}
			if req.UEReportFlags&protocol.UEFlagDLCQI != 0 {
				report.DLWidebandCQI = uint32(1 + a.intn(15))
			}
			if req.UEReportFlags&protocol.UEFlagULCQI != 0 {
				report.ULWidebandCQI = uint32(1 + a.intn(15))
			}
			resp.UEReports = append(resp.UEReports, report)
		}
	}
	return resp
}

func (a *Agent) measure(req *protocol.RRCMeasRequest) *protocol.RRCMeasResponse {
	if _, ok := a.UE(req.RNTI); !ok {
		return &protocol.RRCMeasResponse{
			Status: protocol.StatusFailure,
			Detail: "unknown rnti",
			RNTI:   req.RNTI,
		}
	}
	return &protocol.RRCMeasResponse{
		RNTI:      req.RNTI,
		MeasID:    a.measID.Add(1),
		PCellRSRP: -70 - int32(a.intn(30)),
		PCellRSRQ: -5 - int32(a.intn(10)),
		Neighbors: []protocol.NeighborMeasurement{{
			RAT:        "EUTRA",
			PhysCellID: 2,
			RSRP:       -90 - int32(a.intn(20)),
			RSRQ:       -10 - int32(a.intn(8)),
		}},
	}
}

func (a *Agent) intn(n int) int {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return a.rng.Intn(n)
}

func (a *Agent) Hello() error {
	return a.send(a.xid.Add(1), protocol.DirectionInitiating, &protocol.Hello{
		Period: uint32(a.cfg.HelloPeriod / time.Millisecond),
	})
}

// Attach records ue and reports it activated.
func (a *Agent) Attach(ue protocol.UEConfig) error {
	a.mu.Lock()
	a.ues[ue.RNTI] = ue
	a.mu.Unlock()
	return a.sendUEState(protocol.UEStateActivated, ue)
}

// Detach forgets rnti and reports it deactivated.
func (a *Agent) Detach(rnti uint32) error {
	a.mu.Lock()
	ue, ok := a.ues[rnti]
	delete(a.ues, rnti)
	a.mu.Unlock()
	if !ok {
		ue = protocol.UEConfig{RNTI: rnti}
	}
	return a.sendUEState(protocol.UEStateDeactivated, ue)
}

func (a *Agent) UE(rnti uint32) (protocol.UEConfig, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ue, ok := a.ues[rnti]
	return ue, ok
}

// UEs returns the attached UEs ordered by RNTI.
func (a *Agent) UEs() []protocol.UEConfig {
	a.mu.Lock()
	out := make([]protocol.UEConfig, 0, len(a.ues))
	for _, ue := range a.ues {
		out = append(out, ue)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RNTI < out[j].RNTI })
	return out
}

func (a *Agent) sendUEState(kind protocol.UEStateChangeType, ue protocol.UEConfig) error {
	return a.send(a.xid.Add(1), protocol.DirectionInitiating, &protocol.UEStateChange{Type: kind, Config: ue})
}

// Bye announces shutdown and closes the link.
func (a *Agent) Bye() error {
	err := a.send(a.xid.Add(1), protocol.DirectionInitiating, &protocol.Bye{})
	_ = a.Close()
	return err
}

func (a *Agent) send(xid uint32, dir protocol.Direction, body protocol.Body) error {
	conn := a.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	msg := protocol.New(a.cfg.AgentID, xid, dir, body)
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.Session.WriteTimeout))
	return protocol.Encode(conn, msg, a.cfg.Session.Limits)
}

func (a *Agent) currentConn() net.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

func (a *Agent) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	for xid, stop := range a.periodic {
		stop()
		delete(a.periodic, xid)
	}
	a.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
