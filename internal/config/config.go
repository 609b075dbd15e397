package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/ranctl/internal/ran"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// RanctlConfig is the file shape read by cmd/ranctl.
type RanctlConfig struct {
	Addr                 string         `toml:"addr" comment:"agent listener"`
	AdminListenAddr      string         `toml:"admin_listen_addr" comment:"admin HTTP surface, empty disables it"`
	CorsOrigins          []string       `toml:"cors_origins"`
	AdminToken           string         `toml:"admin_token" comment:"bearer token for mutating admin routes"`
	HeartbeatIntervalMS  int64          `toml:"heartbeat_interval_ms"`
	AgentPeriodMS        int64          `toml:"agent_period_ms"`
	DeadAfterPeriods     int            `toml:"dead_after_periods"`
	MaxFrameBytes        uint32         `toml:"max_frame_bytes"`
	PrebindBacklog       int            `toml:"prebind_backlog"`
	WriteTimeoutMS       int64          `toml:"write_timeout_ms"`
	MaxComponentCarriers uint32         `toml:"max_component_carriers"`
	Agents               []AgentConfig  `toml:"agents"`
	Tenants              []TenantConfig `toml:"tenants"`
}

type AgentConfig struct {
	Addr  string `toml:"addr"`
	Label string `toml:"label"`
}

type TenantConfig struct {
	ID     string   `toml:"id"`
	Name   string   `toml:"name"`
	Agents []string `toml:"agents"`
}

// EnbsimConfig is the file shape read by cmd/enbsim.
type EnbsimConfig struct {
	Controller    string   `toml:"controller"`
	Agent         string   `toml:"agent"`
	HelloPeriodMS int64    `toml:"hello_period_ms"`
	UEs           []uint32 `toml:"ues"`
}

func LoadRanctlConfig(path string) (RanctlConfig, error) {
	var cfg RanctlConfig
	if err := loadToml(path, &cfg); err != nil {
		return RanctlConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":2210"
	}
	if err := ValidateRanctlConfig(cfg); err != nil {
		return RanctlConfig{}, err
	}
	return cfg, nil
}

func LoadEnbsimConfig(path string) (EnbsimConfig, error) {
	var cfg EnbsimConfig
	if err := loadToml(path, &cfg); err != nil {
		return EnbsimConfig{}, err
	}
	if cfg.Controller == "" {
		cfg.Controller = "127.0.0.1:2210"
	}
	if cfg.HelloPeriodMS == 0 {
		cfg.HelloPeriodMS = 2000
	}
	if err := ValidateEnbsimConfig(cfg); err != nil {
		return EnbsimConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRanctlConfig(cfg RanctlConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("ranctl config missing addr")
	}
	if cfg.HeartbeatIntervalMS < 0 || cfg.AgentPeriodMS < 0 || cfg.DeadAfterPeriods < 0 || cfg.PrebindBacklog < 0 || cfg.WriteTimeoutMS < 0 {
		return fmt.Errorf("ranctl config timings must not be negative")
	}
	for i, a := range cfg.Agents {
		if _, err := ran.ParseEtherAddress(a.Addr); err != nil {
			return fmt.Errorf("agents[%d] invalid: %w", i, err)
		}
	}
	for i, t := range cfg.Tenants {
		if err := ValidateTenantEntry(t); err != nil {
			return fmt.Errorf("tenants[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateTenantEntry(cfg TenantConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if id := strings.TrimSpace(cfg.ID); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("id: %w", err)
		}
	}
	for _, addr := range cfg.Agents {
		if _, err := ran.ParseEtherAddress(addr); err != nil {
			return err
		}
	}
	return nil
}

func ValidateEnbsimConfig(cfg EnbsimConfig) error {
	if strings.TrimSpace(cfg.Controller) == "" {
		return fmt.Errorf("enbsim config missing controller")
	}
	addr, err := ran.ParseEtherAddress(cfg.Agent)
	if err != nil {
		return fmt.Errorf("enbsim config agent: %w", err)
	}
	if addr.IsZero() {
		return fmt.Errorf("enbsim config agent must not be zero")
	}
	if cfg.HelloPeriodMS <= 0 {
		return fmt.Errorf("enbsim config hello_period_ms must be positive")
	}
	for _, rnti := range cfg.UEs {
		if rnti == 0 || rnti > 0xffff {
			return fmt.Errorf("enbsim config rnti %d out of range", rnti)
		}
	}
	return nil
}
