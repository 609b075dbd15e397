package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ranctl/internal/config"
	"github.com/danmuck/ranctl/internal/controller"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/google/uuid"
)

type runtimeConfig struct {
	Service controller.ServiceConfig
	Agents  []config.AgentConfig
	Tenants []config.TenantConfig
}

// loadConfig reads path with the shared ranctl file shape and overlays
// only the keys the file defines on the controller defaults.
func loadConfig(path string) (runtimeConfig, error) {
	cfg := runtimeConfig{Service: controller.DefaultServiceConfig()}
	svc := &cfg.Service

	raw := config.RanctlConfig{Addr: svc.ListenAddr}
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load ranctl config: %w", err)
	}

	if meta.IsDefined("addr") {
		svc.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_listen_addr") {
		svc.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		svc.CORSOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("admin_token") {
		svc.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("heartbeat_interval_ms") {
		svc.Session.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("agent_period_ms") {
		svc.Session.AgentPeriod = time.Duration(raw.AgentPeriodMS) * time.Millisecond
	}
	if meta.IsDefined("dead_after_periods") {
		svc.Session.DeadAfterPeriods = raw.DeadAfterPeriods
	}
	if meta.IsDefined("max_frame_bytes") {
		svc.Session.Limits.MaxBodyBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("prebind_backlog") {
		svc.Session.PrebindBacklog = raw.PrebindBacklog
	}
	if meta.IsDefined("write_timeout_ms") {
		svc.Session.WriteTimeout = time.Duration(raw.WriteTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("max_component_carriers") {
		if raw.MaxComponentCarriers == 0 {
			return runtimeConfig{}, fmt.Errorf("load ranctl config: max_component_carriers must be positive")
		}
		svc.Catalog.MaxComponentCarriers = raw.MaxComponentCarriers
	}

	if err := config.ValidateRanctlConfig(raw); err != nil {
		return runtimeConfig{}, fmt.Errorf("load ranctl config: %w", err)
	}

	cfg.Agents = raw.Agents
	cfg.Tenants = raw.Tenants
	svc.Session = svc.Session.Normalize()
	return cfg, nil
}

// buildRegistry registers configured agents and tenants. Tenant agents
// not listed under [[agents]] are registered on the fly.
func buildRegistry(cfg runtimeConfig) (*ran.Registry, error) {
	reg := ran.NewRegistry()
	for _, a := range cfg.Agents {
		addr, err := ran.ParseEtherAddress(a.Addr)
		if err != nil {
			return nil, err
		}
		if _, err := reg.AddAgent(addr, a.Label); err != nil {
			return nil, err
		}
	}
	for _, t := range cfg.Tenants {
		id := uuid.Nil
		if raw := strings.TrimSpace(t.ID); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				return nil, err
			}
			id = parsed
		}
		tenant, err := reg.AddTenant(id, t.Name)
		if err != nil {
			return nil, err
		}
		for _, rawAddr := range t.Agents {
			addr, err := ran.ParseEtherAddress(rawAddr)
			if err != nil {
				return nil, fmt.Errorf("tenant %s: %w", tenant.ID, err)
			}
			if _, ok := reg.Agent(addr); !ok {
				if _, err := reg.AddAgent(addr, ""); err != nil {
					return nil, err
				}
			}
			if err := reg.Assign(tenant.ID, addr); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}
