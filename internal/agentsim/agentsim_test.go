package agentsim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/ranctl/internal/controller"
	"github.com/danmuck/ranctl/internal/macstats"
	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/danmuck/ranctl/internal/rrcmeas"
	"github.com/danmuck/ranctl/internal/testutil/testlog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simAgentID = 0xa1b2

type rig struct {
	svc    *controller.Service
	agent  *ran.Agent
	tenant uuid.UUID
	sim    *Agent
}

func startRig(t *testing.T, ues ...protocol.UEConfig) *rig {
	t.Helper()
	testlog.Start(t)
	reg := ran.NewRegistry()
	agent, err := reg.AddAgent(ran.MustAddress(simAgentID), "sim")
	require.NoError(t, err)
	tenant, err := reg.AddTenant(uuid.Nil, "operator")
	require.NoError(t, err)
	require.NoError(t, reg.Assign(tenant.ID, agent.Addr))

	svc := controller.NewService(reg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- svc.Serve(ctx, ln) }()

	cfg := DefaultConfig()
	cfg.Address = ln.Addr().String()
	cfg.AgentID = simAgentID
	cfg.HelloPeriod = 50 * time.Millisecond
	cfg.UEs = ues
	sim, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, sim.Connect(ctx))
	runErr := make(chan error, 1)
	go func() { runErr <- sim.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-runErr
		<-served
	})
	require.Eventually(t, agent.Connected, 2*time.Second, 5*time.Millisecond)
	return &rig{svc: svc, agent: agent, tenant: tenant.ID, sim: sim}
}

func TestNewRequiresAddressAndID(t *testing.T) {
	testlog.Start(t)
	_, err := New(Config{AgentID: 1})
	assert.ErrorIs(t, err, ErrAddressRequired)
	_, err = New(Config{Address: "127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrAgentIDRequired)
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.AgentID = 1
	cfg.MaxConnectAttempts = 2
	cfg.Session.Backoff.InitialDelay = time.Millisecond
	sim, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, sim.Connect(context.Background()))
}

func TestHandshakeStoresConfigAndUEs(t *testing.T) {
	r := startRig(t, protocol.UEConfig{RNTI: 0x46, IMSI: 1}, protocol.UEConfig{RNTI: 0x47, IMSI: 2})

	require.Eventually(t, func() bool { return r.agent.Config() != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(simAgentID), r.agent.Config().EnbID)
	require.Eventually(t, func() bool { return r.agent.UECount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.sim.Detach(0x47))
	require.Eventually(t, func() bool { return r.agent.UECount() == 1 }, 2*time.Second, 5*time.Millisecond)

	before := r.agent.LastSeen()
	require.Eventually(t, func() bool { return r.agent.LastSeen().After(before) }, 2*time.Second, 10*time.Millisecond)
}

func TestRRCMeasurementRoundTrip(t *testing.T) {
	r := startRig(t, protocol.UEConfig{RNTI: 0x46})
	require.Eventually(t, func() bool { return r.agent.UECount() == 1 }, 2*time.Second, 5*time.Millisecond)

	freq := uint32(3400)
	results := make(chan module.Module, 1)
	m, err := r.svc.Server().RRCMeasurements().Submit(rrcmeas.Request{
		Tenant:   r.tenant,
		Agent:    r.agent.Addr,
		RNTI:     0x46,
		Every:    module.Once(),
		Config:   rrcmeas.RequestConfig{ReportInterval: "480ms", CarrierFrequency: &freq},
		OnResult: func(m module.Module) { results <- m },
	})
	require.NoError(t, err)

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatalf("no measurement result")
	}
	require.NotNil(t, m.Report())
	ue, ok := r.agent.UE(0x46)
	require.True(t, ok)
	serving, ok := ue.Serving()
	require.True(t, ok)
	assert.Equal(t, m.Report().PCellRSRP, serving.RSRP)
	assert.Len(t, ue.Neighbors(), 1)
	assert.Contains(t, ue.MeasConfigs(), m.ID())
}

func TestPeriodicStatsStartAndStop(t *testing.T) {
	r := startRig(t)
	period := uint32(20)
	stats := r.svc.Server().MACStats()

	m, err := stats.Submit(macstats.Request{
		Tenant: r.tenant,
		Agent:  r.agent.Addr,
		Every:  module.Once(),
		Config: macstats.RequestConfig{
			ReportType:      macstats.ReportCell,
			ReportFrequency: macstats.FrequencyPeriodical,
			Periodicity:     &period,
			ReportConfig: &macstats.ReportConfig{
				UE:   &macstats.UEReportConfig{},
				Cell: &macstats.CellReportConfig{Flags: []string{"noise_interference"}, CCIDs: []uint32{0}},
			},
		},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(r.sim.PeriodicReports()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.Reply() != nil }, 2*time.Second, 5*time.Millisecond)

	xid := m.ID()
	_, err = stats.Submit(macstats.Request{
		Tenant: r.tenant,
		Agent:  r.agent.Addr,
		Config: macstats.RequestConfig{
			ReportType:      macstats.ReportCell,
			ReportFrequency: macstats.FrequencyOff,
			TimerXID:        &xid,
		},
	})
	require.NoError(t, err)
	assert.False(t, r.svc.Server().Timers().Contains(xid))
	require.Eventually(t, func() bool { return len(r.sim.PeriodicReports()) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestByeUnbindsAgent(t *testing.T) {
	r := startRig(t)
	require.NoError(t, r.sim.Bye())
	require.Eventually(t, func() bool { return !r.agent.Connected() }, 2*time.Second, 5*time.Millisecond)
}
