package controller

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ranctl/internal/observability"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/protocol/frame"
	"github.com/danmuck/ranctl/internal/protocol/schema"
	"github.com/danmuck/ranctl/internal/protocol/session"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/rs/zerolog/log"
)

var ErrConnectionClosed = errors.New("controller: connection closed")

// BindState is the handshake position of a connection.
type BindState int

const (
	Unbound BindState = iota
	Bound
)

func (s BindState) String() string {
	if s == Bound {
		return "bound"
	}
	return "unbound"
}

// Connection is one agent TCP link. It implements ran.Link once bound.
type Connection struct {
	conn   net.Conn
	server *Server
	cfg    session.Config
	now    func() time.Time
	reader *frame.Reader

	writeMu sync.Mutex
	xid     atomic.Uint32
	backlog *session.Backlog

	mu      sync.RWMutex
	agent   *ran.Agent
	agentID uint64

	closeOnce sync.Once
	closed    chan struct{}
}

var _ ran.Link = (*Connection)(nil)

func NewConnection(conn net.Conn, server *Server, cfg session.Config) *Connection {
	cfg = cfg.Normalize()
	return &Connection{
		conn:    conn,
		server:  server,
		cfg:     cfg,
		now:     time.Now,
		reader:  frame.NewReader(conn, cfg.Limits),
		backlog: session.NewBacklog(cfg.PrebindBacklog),
		closed:  make(chan struct{}),
	}
}

// ReadState is the framing state of the reader loop. It is only
// meaningful from the goroutine running Serve.
func (c *Connection) ReadState() frame.State {
	return c.reader.State()
}

func (c *Connection) BindState() BindState {
	if c.Agent() != nil {
		return Bound
	}
	return Unbound
}

// Agent is the bound agent, or nil before the handshake.
func (c *Connection) Agent() *ran.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agent
}

func (c *Connection) AgentID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentID
}

func (c *Connection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Connection) NextXID() uint32 {
	return c.xid.Add(1)
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Serve reads frames until the peer goes away, ctx ends, or the stream
// can no longer be resynchronized. Framing and decode errors on a single
// frame are logged and the loop continues.
func (c *Connection) Serve(ctx context.Context) error {
	log.Info().Str("remote", c.RemoteAddr()).Msg("controller.Connection.Serve accepted")
	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go c.heartbeat(hbCtx)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.closed:
		}
	}()
	defer c.teardown()

	for {
		body, err := c.reader.Next()
		switch {
		case err == nil:
			c.handleFrame(body)
		case errors.Is(err, frame.ErrEmptyFrame):
			observability.RecordDecodeFailure("empty_frame")
			log.Warn().Str("remote", c.RemoteAddr()).Msg("controller.Connection.Serve empty frame dropped")
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), c.isClosed():
			log.Info().Str("remote", c.RemoteAddr()).Msg("controller.Connection.Serve peer closed")
			return nil
		case errors.Is(err, frame.ErrFrameTooLarge):
			observability.RecordDecodeFailure("frame_too_large")
			log.Error().Err(err).Str("remote", c.RemoteAddr()).Msg("controller.Connection.Serve closing unframeable stream")
			_ = c.Close()
			return err
		default:
			log.Warn().Err(err).Str("remote", c.RemoteAddr()).Msg("controller.Connection.Serve read failed")
			_ = c.Close()
			return err
		}
	}
}

func (c *Connection) handleFrame(body []byte) {
	size := frame.PrefixLen + len(body)
	msg, err := protocol.Unmarshal(body)
	if err != nil {
		observability.RecordDecodeFailure("decode")
		log.Warn().Err(err).Str("remote", c.RemoteAddr()).Int("bytes", size).Msg("controller.Connection.handleFrame decode failed")
		return
	}
	if err := schema.Validate(msg); err != nil {
		observability.RecordDecodeFailure("schema")
		log.Warn().Err(err).Str("remote", c.RemoteAddr()).Msg("controller.Connection.handleFrame invalid message")
		return
	}
	kind := msg.Kind()
	if !schema.AcceptsFromAgent(kind) {
		log.Warn().Stringer("kind", kind).Str("remote", c.RemoteAddr()).Msg("controller.Connection.handleFrame kind not accepted from agent")
		return
	}
	observability.RecordMessage("uplink", kind.String(), size)

	if c.Agent() == nil && kind != protocol.KindHello {
		if !c.backlog.Push(msg) {
			log.Warn().Stringer("kind", kind).Uint32("xid", msg.Header.XID).Str("remote", c.RemoteAddr()).
				Msg("controller.Connection.handleFrame pre-bind backlog full, dropped")
			return
		}
		log.Debug().Stringer("kind", kind).Uint32("xid", msg.Header.XID).Msg("controller.Connection.handleFrame deferred until bind")
		return
	}
	c.dispatch(msg)
	if agent := c.Agent(); agent != nil {
		agent.AddUplink(size)
	}
}

func (c *Connection) dispatch(msg *protocol.Message) {
	if msg.Kind() == protocol.KindHello {
		c.handleHello(msg)
		return
	}
	agent := c.Agent()
	if agent == nil {
		log.Warn().Stringer("kind", msg.Kind()).Msg("controller.Connection.dispatch agent not bound")
		return
	}
	if msg.Header.AgentID != 0 && msg.Header.AgentID != c.AgentID() {
		log.Warn().Uint64("agent_id", msg.Header.AgentID).Uint64("bound", c.AgentID()).Stringer("kind", msg.Kind()).
			Msg("controller.Connection.dispatch agent id mismatch, dropped")
		return
	}

	switch body := msg.Body.(type) {
	case *protocol.Bye:
		log.Info().Stringer("agent", agent.Addr).Msg("controller.Connection.dispatch bye")
		_ = c.Close()
		return
	case *protocol.EchoRequest:
		reply := protocol.New(c.AgentID(), msg.Header.XID, protocol.DirectionSuccessfulOutcome, &protocol.EchoReply{})
		if err := c.Send(reply); err != nil {
			log.Warn().Err(err).Stringer("agent", agent.Addr).Msg("controller.Connection.dispatch echo reply failed")
		}
		return
	case *protocol.EchoReply:
		log.Debug().Stringer("agent", agent.Addr).Uint32("xid", msg.Header.XID).Msg("controller.Connection.dispatch echo reply")
		return
	case *protocol.ConfigReply:
		agent.SetConfig(body)
		log.Info().Stringer("agent", agent.Addr).Uint64("enb_id", body.EnbID).Int("cells", len(body.Cells)).
			Msg("controller.Connection.dispatch enb config stored")
		return
	case *protocol.UEStateChange:
		c.handleUEState(agent, body)
		return
	case *protocol.RRCMeasResponse:
		ue, ok := agent.UE(body.RNTI)
		if !ok {
			log.Warn().Stringer("agent", agent.Addr).Uint32("rnti", body.RNTI).Msg("controller.Connection.dispatch measurement for unknown rnti, dropped")
			return
		}
		if body.Status == protocol.StatusOK {
			ue.ApplyMeasurements(body, c.now())
		}
	}

	if !c.server.Route(agent, msg) {
		log.Debug().Stringer("kind", msg.Kind()).Uint32("xid", msg.Header.XID).Stringer("agent", agent.Addr).
			Msg("controller.Connection.dispatch unrouted")
	}
}

// handleHello binds on the first HELLO and refreshes liveness afterwards.
func (c *Connection) handleHello(msg *protocol.Message) {
	now := c.now()
	if agent := c.Agent(); agent != nil {
		if msg.Header.AgentID != c.AgentID() {
			log.Warn().Uint64("agent_id", msg.Header.AgentID).Uint64("bound", c.AgentID()).
				Msg("controller.Connection.handleHello agent id mismatch, ignored")
			return
		}
		agent.Touch(now)
		return
	}

	addr, err := ran.AddressFromID(msg.Header.AgentID)
	if err != nil {
		log.Warn().Err(err).Uint64("agent_id", msg.Header.AgentID).Msg("controller.Connection.handleHello bad agent id")
		return
	}
	agent, ok := c.server.Registry().Agent(addr)
	if !ok {
		log.Warn().Stringer("agent", addr).Str("remote", c.RemoteAddr()).Msg("controller.Connection.handleHello unknown agent")
		return
	}

	c.mu.Lock()
	c.agentID = msg.Header.AgentID
	c.mu.Unlock()
	if !agent.Bind(c, c.cfg.AgentPeriod, now) {
		c.mu.Lock()
		c.agentID = 0
		c.mu.Unlock()
		log.Warn().Stringer("agent", addr).Str("remote", c.RemoteAddr()).Msg("controller.Connection.handleHello agent bound elsewhere")
		return
	}
	c.mu.Lock()
	c.agent = agent
	c.mu.Unlock()
	observability.AgentBound()
	log.Info().Stringer("agent", addr).Str("label", agent.Label).Str("remote", c.RemoteAddr()).
		Dur("period", c.cfg.AgentPeriod).Msg("controller.Connection.handleHello agent bound")

	c.xid.Store(msg.Header.XID)
	req := protocol.New(c.AgentID(), c.NextXID(), protocol.DirectionInitiating, &protocol.ConfigRequest{})
	if err := c.Send(req); err != nil {
		log.Warn().Err(err).Stringer("agent", addr).Msg("controller.Connection.handleHello config request failed")
	}

	for _, deferred := range c.backlog.Drain() {
		c.dispatch(deferred)
	}
}

func (c *Connection) handleUEState(agent *ran.Agent, change *protocol.UEStateChange) {
	rnti := change.Config.RNTI
	switch change.Type {
	case protocol.UEStateActivated:
		if ue, ok := agent.UE(rnti); ok {
			ue.Update(change.Config)
		} else {
			agent.PutUE(ran.NewUE(agent.Addr, change.Config))
		}
		log.Info().Stringer("agent", agent.Addr).Uint32("rnti", rnti).Msg("controller.Connection.handleUEState ue activated")
	case protocol.UEStateDeactivated:
		if agent.RemoveUE(rnti) {
			log.Info().Stringer("agent", agent.Addr).Uint32("rnti", rnti).Msg("controller.Connection.handleUEState ue deactivated")
		}
	case protocol.UEStateUpdated:
		if ue, ok := agent.UE(rnti); ok {
			ue.Update(change.Config)
		}
	default:
		log.Debug().Stringer("agent", agent.Addr).Uint32("rnti", rnti).Stringer("type", change.Type).
			Msg("controller.Connection.handleUEState ignored")
	}
}

// Send frames msg and writes it in a single write.
func (c *Connection) Send(msg *protocol.Message) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	body, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	err = frame.WriteFrame(c.conn, body, c.cfg.Limits)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	size := frame.PrefixLen + len(body)
	if agent := c.Agent(); agent != nil {
		agent.AddDownlink(size)
	}
	observability.RecordMessage("downlink", msg.Kind().String(), size)
	return nil
}

// SendEchoRequest probes the agent. The reply carries the returned xid.
func (c *Connection) SendEchoRequest() (uint32, error) {
	xid := c.NextXID()
	return xid, c.Send(protocol.New(c.AgentID(), xid, protocol.DirectionInitiating, &protocol.EchoRequest{}))
}

func (c *Connection) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			if c.checkHeartbeat(c.now()) {
				return
			}
		}
	}
}

// checkHeartbeat closes the connection when its agent has been silent for
// more than DeadAfterPeriods periods. It reports whether it closed.
func (c *Connection) checkHeartbeat(now time.Time) bool {
	agent := c.Agent()
	if agent == nil || !agent.Expired(now, c.cfg.DeadAfterPeriods) {
		return false
	}
	observability.RecordHeartbeatClosure()
	log.Warn().Stringer("agent", agent.Addr).Time("last_seen", agent.LastSeen()).Dur("period", agent.Period()).
		Msg("controller.Connection.checkHeartbeat agent silent, closing")
	_ = c.Close()
	return true
}

func (c *Connection) teardown() {
	_ = c.Close()
	c.mu.Lock()
	agent := c.agent
	c.agent = nil
	c.mu.Unlock()
	if agent == nil {
		return
	}
	if agent.Unbind(c) {
		observability.AgentUnbound()
		c.server.Detach(agent)
		log.Info().Stringer("agent", agent.Addr).Int("ues", agent.UECount()).Msg("controller.Connection.teardown agent unbound")
	}
}
