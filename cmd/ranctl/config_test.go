package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/ranctl/internal/controller"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/danmuck/ranctl/internal/testutil/testlog"
	"github.com/google/uuid"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
addr = "127.0.0.1:4000"
admin_listen_addr = "127.0.0.1:8080"
heartbeat_interval_ms = 250
agent_period_ms = 1000
max_component_carriers = 2

[[agents]]
addr = "00:00:00:00:12:34"
label = "enb-a"

[[tenants]]
id = "52313ecb-9d00-4b7d-b873-b55d3d9ada26"
name = "op"
agents = ["00:00:00:00:12:34", "00:00:00:00:56:78"]
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := controller.DefaultServiceConfig()
	if cfg.Service.ListenAddr != "127.0.0.1:4000" {
		t.Fatalf("unexpected listen addr: %q", cfg.Service.ListenAddr)
	}
	if cfg.Service.AdminListenAddr != "127.0.0.1:8080" {
		t.Fatalf("unexpected admin addr: %q", cfg.Service.AdminListenAddr)
	}
	if cfg.Service.Session.HeartbeatInterval != 250*time.Millisecond {
		t.Fatalf("unexpected heartbeat interval: %s", cfg.Service.Session.HeartbeatInterval)
	}
	if cfg.Service.Session.AgentPeriod != time.Second {
		t.Fatalf("unexpected agent period: %s", cfg.Service.Session.AgentPeriod)
	}
	if cfg.Service.Session.DeadAfterPeriods != def.Session.DeadAfterPeriods {
		t.Fatalf("dead_after_periods should keep its default, got %d", cfg.Service.Session.DeadAfterPeriods)
	}
	if cfg.Service.Catalog.MaxComponentCarriers != 2 {
		t.Fatalf("unexpected max component carriers: %d", cfg.Service.Catalog.MaxComponentCarriers)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	if got := len(reg.Agents()); got != 2 {
		t.Fatalf("expected 2 agents, got %d", got)
	}
	a, ok := reg.Agent(ran.MustAddress(0x1234))
	if !ok || a.Label != "enb-a" {
		t.Fatalf("agent 0x1234 not registered with its label")
	}
	tenant := uuid.MustParse("52313ecb-9d00-4b7d-b873-b55d3d9ada26")
	if _, err := reg.TenantAgent(tenant, ran.MustAddress(0x5678)); err != nil {
		t.Fatalf("tenant agent lookup: %v", err)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad agent addr": "[[agents]]\naddr = \"nope\"\n",
		"bad tenant id":  "[[tenants]]\nid = \"x\"\nname = \"op\"\n",
		"zero carriers":  "max_component_carriers = 0\n",
		"empty addr":     "addr = \"  \"\n",
		"malformed toml": "addr = \n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadConfig(writeConfig(t, content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSampleConfigLoads(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig("config.toml")
	if err != nil {
		t.Fatalf("load sample config: %v", err)
	}
	if _, err := buildRegistry(cfg); err != nil {
		t.Fatalf("build registry: %v", err)
	}
}
