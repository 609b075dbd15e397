package controller

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/ranctl/internal/macstats"
	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/protocol/frame"
	"github.com/danmuck/ranctl/internal/protocol/session"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/danmuck/ranctl/internal/testutil/testlog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAgentID = 0x1234

// bufConn is a net.Conn whose writes are captured and whose reads block
// until Close.
type bufConn struct {
	mu     sync.Mutex
	out    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newBufConn() *bufConn { return &bufConn{closed: make(chan struct{})} }

func (c *bufConn) Read([]byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *bufConn) Write(b []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(b)
}

func (c *bufConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *bufConn) LocalAddr() net.Addr              { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2210} }
func (c *bufConn) RemoteAddr() net.Addr             { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000} }
func (c *bufConn) SetDeadline(time.Time) error      { return nil }
func (c *bufConn) SetReadDeadline(time.Time) error  { return nil }
func (c *bufConn) SetWriteDeadline(time.Time) error { return nil }

// sent decodes every frame written so far.
func (c *bufConn) sent(t *testing.T) []*protocol.Message {
	t.Helper()
	c.mu.Lock()
	raw := append([]byte(nil), c.out.Bytes()...)
	c.mu.Unlock()
	r := frame.NewReader(bytes.NewReader(raw), frame.DefaultLimits())
	var out []*protocol.Message
	for {
		body, err := r.Next()
		if err != nil {
			return out
		}
		msg, err := protocol.Unmarshal(body)
		require.NoError(t, err)
		out = append(out, msg)
	}
}

type harness struct {
	server *Server
	agent  *ran.Agent
	tenant uuid.UUID
	conn   *bufConn
	c      *Connection
	clock  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	testlog.Start(t)
	reg := ran.NewRegistry()
	agent, err := reg.AddAgent(ran.MustAddress(testAgentID), "enb-1")
	require.NoError(t, err)
	tenant, err := reg.AddTenant(uuid.Nil, "operator")
	require.NoError(t, err)
	require.NoError(t, reg.Assign(tenant.ID, agent.Addr))

	srv := NewServer(reg, macstats.DefaultCatalog())
	t.Cleanup(srv.Close)
	h := &harness{server: srv, agent: agent, tenant: tenant.ID, clock: time.Unix(1_700_000_000, 0)}
	h.conn, h.c = h.connect()
	return h
}

func (h *harness) connect() (*bufConn, *Connection) {
	conn := newBufConn()
	c := NewConnection(conn, h.server, session.DefaultConfig())
	c.now = func() time.Time { return h.clock }
	return conn, c
}

func (h *harness) deliver(t *testing.T, c *Connection, msg *protocol.Message) {
	t.Helper()
	body, err := protocol.Marshal(msg)
	require.NoError(t, err)
	c.handleFrame(body)
}

func (h *harness) hello(t *testing.T, xid uint32) {
	t.Helper()
	h.deliver(t, h.c, protocol.New(testAgentID, xid, protocol.DirectionInitiating, &protocol.Hello{Period: 5000}))
}

func ueEvent(kind protocol.UEStateChangeType, rnti uint32) *protocol.Message {
	return protocol.New(testAgentID, 0, protocol.DirectionInitiating, &protocol.UEStateChange{
		Type:   kind,
		Config: protocol.UEConfig{RNTI: rnti, IMSI: 222930000000001},
	})
}

func TestHelloBindsAgentAndRequestsConfig(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, Unbound, h.c.BindState())
	assert.Equal(t, frame.AwaitingLength, h.c.ReadState())

	h.hello(t, 41)

	require.Equal(t, Bound, h.c.BindState())
	assert.Same(t, h.c, h.agent.Link())
	assert.Equal(t, 5000*time.Millisecond, h.agent.Period())
	assert.Equal(t, h.clock, h.agent.LastSeen())

	sent := h.conn.sent(t)
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.KindConfigRequest, sent[0].Kind())
	assert.Equal(t, uint32(42), sent[0].Header.XID)
	assert.Equal(t, uint64(testAgentID), sent[0].Header.AgentID)

	assert.NotZero(t, h.agent.Uplink())
	assert.NotZero(t, h.agent.Downlink())
}

func TestHelloFromUnknownAgentStaysUnbound(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, h.c, protocol.New(0x9999, 1, protocol.DirectionInitiating, &protocol.Hello{}))

	assert.Equal(t, Unbound, h.c.BindState())
	assert.False(t, h.agent.Connected())
	assert.Empty(t, h.conn.sent(t))
}

func TestLaterHelloRefreshesAndMismatchIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)
	bound := h.clock

	h.clock = h.clock.Add(2 * time.Second)
	h.deliver(t, h.c, protocol.New(0x4321, 2, protocol.DirectionInitiating, &protocol.Hello{}))
	assert.Equal(t, bound, h.agent.LastSeen(), "mismatched hello must not refresh")
	assert.Equal(t, uint64(testAgentID), h.c.AgentID())

	h.hello(t, 3)
	assert.Equal(t, h.clock, h.agent.LastSeen())
	assert.Len(t, h.conn.sent(t), 1, "config is requested once per bind")
}

func TestSecondConnectionCannotTakeBoundAgent(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)

	conn2, c2 := h.connect()
	h.deliver(t, c2, protocol.New(testAgentID, 1, protocol.DirectionInitiating, &protocol.Hello{}))
	assert.Equal(t, Unbound, c2.BindState())
	assert.Same(t, h.c, h.agent.Link())
	assert.Empty(t, conn2.sent(t))
}

func TestUEStateChangeLifecycle(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)

	h.deliver(t, h.c, ueEvent(protocol.UEStateActivated, 0xf93b))
	ue, ok := h.agent.UE(0xf93b)
	require.True(t, ok)
	assert.Equal(t, "00:00:00:00:f9:3b", ran.MustAddress(uint64(ue.RNTI)).String())
	assert.Equal(t, 1, h.agent.UECount())

	h.deliver(t, h.c, ueEvent(protocol.UEStateActivated, 0xf93b))
	assert.Equal(t, 1, h.agent.UECount(), "a repeated activation keeps one UE")

	h.deliver(t, h.c, ueEvent(protocol.UEStateMoved, 0xf93b))
	assert.Equal(t, 1, h.agent.UECount())

	h.deliver(t, h.c, ueEvent(protocol.UEStateDeactivated, 0xbeef))
	assert.Equal(t, 1, h.agent.UECount(), "unknown rnti is a no-op")

	h.deliver(t, h.c, ueEvent(protocol.UEStateDeactivated, 0xf93b))
	_, ok = h.agent.UE(0xf93b)
	assert.False(t, ok)
}

func TestMessagesBeforeHelloAreReplayedOnBind(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, h.c, ueEvent(protocol.UEStateActivated, 0x46))
	assert.Zero(t, h.agent.UECount())

	h.hello(t, 1)
	_, ok := h.agent.UE(0x46)
	assert.True(t, ok)
}

func TestPrebindBacklogOverflowDrops(t *testing.T) {
	h := newHarness(t)
	limit := session.DefaultConfig().PrebindBacklog
	for i := 0; i < limit+3; i++ {
		h.deliver(t, h.c, ueEvent(protocol.UEStateActivated, uint32(i+1)))
	}
	h.hello(t, 1)
	assert.Equal(t, limit, h.agent.UECount())
}

func TestEchoRequestAnsweredWithSameXID(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)
	h.deliver(t, h.c, protocol.New(testAgentID, 77, protocol.DirectionInitiating, &protocol.EchoRequest{}))

	sent := h.conn.sent(t)
	require.Len(t, sent, 2)
	assert.Equal(t, protocol.KindEchoReply, sent[1].Kind())
	assert.Equal(t, uint32(77), sent[1].Header.XID)
	assert.Equal(t, protocol.DirectionSuccessfulOutcome, sent[1].Direction)

	xid, err := h.c.SendEchoRequest()
	require.NoError(t, err)
	sent = h.conn.sent(t)
	assert.Equal(t, protocol.KindEchoRequest, sent[2].Kind())
	assert.Equal(t, xid, sent[2].Header.XID)
}

func TestConfigReplyStoredOnAgent(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)
	h.deliver(t, h.c, protocol.New(testAgentID, 2, protocol.DirectionSuccessfulOutcome, &protocol.ConfigReply{
		EnbID: testAgentID,
		Cells: []protocol.CellConfig{{CellID: 1, PCI: 7, DLEarfcn: 3400, ULEarfcn: 21400, DLBandPRB: 25, ULBandPRB: 25}},
	}))

	cfg := h.agent.Config()
	require.NotNil(t, cfg)
	require.Len(t, cfg.Cells, 1)
	assert.Equal(t, uint32(7), cfg.Cells[0].PCI)
	assert.Equal(t, 1, h.agent.Snapshot().Cells)
}

func TestRRCMeasurementForUnknownRNTIIsDropped(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)
	h.deliver(t, h.c, ueEvent(protocol.UEStateActivated, 0x46))

	h.deliver(t, h.c, protocol.New(testAgentID, 9, protocol.DirectionSuccessfulOutcome, &protocol.RRCMeasResponse{
		RNTI: 0x99, PCellRSRP: -80, PCellRSRQ: -9,
	}))
	ue, _ := h.agent.UE(0x46)
	_, ok := ue.Serving()
	assert.False(t, ok)

	h.deliver(t, h.c, protocol.New(testAgentID, 9, protocol.DirectionSuccessfulOutcome, &protocol.RRCMeasResponse{
		RNTI: 0x46, MeasID: 3, PCellRSRP: -80, PCellRSRQ: -9,
		Neighbors: []protocol.NeighborMeasurement{{RAT: "EUTRA", PhysCellID: 12, RSRP: -95, RSRQ: -14}},
	}))
	serving, ok := ue.Serving()
	require.True(t, ok)
	assert.Equal(t, int32(-80), serving.RSRP)
	require.Len(t, ue.Neighbors(), 1)
	assert.Equal(t, uint32(12), ue.Neighbors()[0].PhysCellID)
}

func TestHeartbeatBoundary(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.c.checkHeartbeat(h.clock.Add(time.Hour)), "unbound connections are not expired")

	h.hello(t, 1)
	deadline := h.clock.Add(3 * 5000 * time.Millisecond)

	assert.False(t, h.c.checkHeartbeat(deadline))
	select {
	case <-h.c.Done():
		t.Fatalf("connection closed at the boundary")
	default:
	}

	assert.True(t, h.c.checkHeartbeat(deadline.Add(time.Millisecond)))
	select {
	case <-h.c.Done():
	default:
		t.Fatalf("connection still open past the boundary")
	}
}

func TestStatsResponseDeliveredToModule(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)

	results := make(chan module.Module, 1)
	m, err := h.server.MACStats().Submit(macstats.Request{
		Tenant: h.tenant,
		Agent:  h.agent.Addr,
		Every:  module.Once(),
		Config: macstats.RequestConfig{
			ReportType:      macstats.ReportComplete,
			ReportFrequency: macstats.FrequencyOnce,
			ReportConfig: &macstats.ReportConfig{
				UE:   &macstats.UEReportConfig{Flags: []string{"buffer_status_report"}},
				Cell: &macstats.CellReportConfig{Flags: []string{"noise_interference"}},
			},
		},
		OnResult: func(m module.Module) { results <- m },
	})
	require.NoError(t, err)

	sent := h.conn.sent(t)
	req := sent[len(sent)-1]
	require.Equal(t, protocol.KindStatsRequest, req.Kind())
	assert.Equal(t, m.ID(), req.Header.XID)

	h.deliver(t, h.c, protocol.New(testAgentID, m.ID(), protocol.DirectionSuccessfulOutcome, &protocol.StatsResponse{
		CellReports: []protocol.CellStatsReport{{CarrierIndex: 0, Flags: protocol.CellFlagNoiseInterference, NoiseInterference: -110}},
	}))

	select {
	case got := <-results:
		assert.Same(t, m, got)
	case <-time.After(time.Second):
		t.Fatalf("no result delivered")
	}
	require.NotNil(t, m.Reply())
	_, live := h.server.MACStats().Get(m.ID())
	assert.False(t, live, "once requests leave the worker after their reply")
}

func TestDisconnectClearsPeriodicRequestsButKeepsUEs(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)
	h.deliver(t, h.c, ueEvent(protocol.UEStateActivated, 0x46))

	period := uint32(1000)
	m, err := h.server.MACStats().Submit(macstats.Request{
		Tenant: h.tenant,
		Agent:  h.agent.Addr,
		Every:  module.Once(),
		Config: macstats.RequestConfig{
			ReportType:      macstats.ReportUE,
			ReportFrequency: macstats.FrequencyPeriodical,
			Periodicity:     &period,
			ReportConfig: &macstats.ReportConfig{
				UE:   &macstats.UEReportConfig{Flags: []string{"power_headroom_report"}, RNTIs: []uint32{0x46}},
				Cell: &macstats.CellReportConfig{},
			},
		},
	})
	require.NoError(t, err)
	require.True(t, h.server.Timers().Contains(m.ID()))

	h.c.teardown()

	assert.False(t, h.agent.Connected())
	assert.Zero(t, h.server.Timers().Len())
	_, live := h.server.MACStats().Get(m.ID())
	assert.False(t, live)
	assert.Equal(t, 1, h.agent.UECount(), "UEs survive the disconnect")

	sent, err := h.agent.Send(99, &protocol.EchoRequest{})
	assert.NoError(t, err)
	assert.False(t, sent, "sends after disconnect are no-ops")
	assert.ErrorIs(t, h.c.Send(protocol.New(testAgentID, 1, protocol.DirectionInitiating, &protocol.EchoRequest{})), ErrConnectionClosed)
}

func TestByeClosesConnection(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)
	h.deliver(t, h.c, protocol.New(testAgentID, 2, protocol.DirectionInitiating, &protocol.Bye{}))
	select {
	case <-h.c.Done():
	default:
		t.Fatalf("bye did not close the connection")
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	h := newHarness(t)
	h.c.handleFrame([]byte{0xff, 0xff, 0xff})
	h.hello(t, 1)
	assert.Equal(t, Bound, h.c.BindState())
}

func TestControllerOnlyKindRejectedFromAgent(t *testing.T) {
	h := newHarness(t)
	h.hello(t, 1)
	h.deliver(t, h.c, protocol.New(testAgentID, 5, protocol.DirectionInitiating, &protocol.StatsRequest{
		ReportFrequency: protocol.ReportFrequencyOnce,
	}))
	assert.Len(t, h.conn.sent(t), 1)
}
