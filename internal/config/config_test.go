package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/ranctl/internal/testutil/testlog"
)

func TestTemplatesLoadAndValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	ranctlPath := filepath.Join(dir, "ranctl.toml")
	if err := WriteTemplate(ranctlPath, "ranctl", false); err != nil {
		t.Fatalf("write ranctl template: %v", err)
	}
	cfg, err := LoadRanctlConfig(ranctlPath)
	if err != nil {
		t.Fatalf("load ranctl template: %v", err)
	}
	if len(cfg.Agents) != 1 || len(cfg.Tenants) != 1 {
		t.Fatalf("unexpected template inventory: %+v", cfg)
	}
	if cfg.Tenants[0].Agents[0] != cfg.Agents[0].Addr {
		t.Fatalf("template tenant should own the template agent")
	}

	enbPath := filepath.Join(dir, "enbsim.toml")
	if err := WriteTemplate(enbPath, "enbsim", false); err != nil {
		t.Fatalf("write enbsim template: %v", err)
	}
	sim, err := LoadEnbsimConfig(enbPath)
	if err != nil {
		t.Fatalf("load enbsim template: %v", err)
	}
	if len(sim.UEs) != 2 || sim.UEs[0] != 0x46 {
		t.Fatalf("unexpected ues: %v", sim.UEs)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "ranctl.toml")
	if err := os.WriteFile(path, []byte("addr = \":1\"\n"), 0o600); err != nil {
		t.Fatalf("prefill config: %v", err)
	}
	if err := WriteTemplate(path, "ranctl", false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, "ranctl", true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
	if _, err := Template("mme"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestValidateRanctlConfigRejectsBadEntries(t *testing.T) {
	testlog.Start(t)
	cases := map[string]RanctlConfig{
		"missing addr":     {},
		"negative period":  {Addr: ":1", AgentPeriodMS: -1},
		"bad agent":        {Addr: ":1", Agents: []AgentConfig{{Addr: "zz"}}},
		"unnamed tenant":   {Addr: ":1", Tenants: []TenantConfig{{}}},
		"bad tenant id":    {Addr: ":1", Tenants: []TenantConfig{{Name: "op", ID: "nope"}}},
		"bad tenant agent": {Addr: ":1", Tenants: []TenantConfig{{Name: "op", Agents: []string{"1:2"}}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if err := ValidateRanctlConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateEnbsimConfig(t *testing.T) {
	testlog.Start(t)
	ok := EnbsimConfig{Controller: "127.0.0.1:2210", Agent: "00:00:00:00:12:34", HelloPeriodMS: 100, UEs: []uint32{1}}
	if err := ValidateEnbsimConfig(ok); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	zero := ok
	zero.Agent = "00:00:00:00:00:00"
	if err := ValidateEnbsimConfig(zero); err == nil {
		t.Fatalf("expected zero agent rejection")
	}
	big := ok
	big.UEs = []uint32{0x10000}
	if err := ValidateEnbsimConfig(big); err == nil {
		t.Fatalf("expected rnti range rejection")
	}
}
