package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

const templateAgent = "00:00:00:00:a1:b2"

// Template renders a starter config for kind ("ranctl" or "enbsim").
func Template(kind string) (string, error) {
	var v any
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "ranctl":
		v = RanctlConfig{
			Addr:                 ":2210",
			AdminListenAddr:      "127.0.0.1:8888",
			CorsOrigins:          []string{"http://localhost:3000"},
			HeartbeatIntervalMS:  500,
			AgentPeriodMS:        5000,
			DeadAfterPeriods:     3,
			MaxFrameBytes:        1 << 20,
			PrebindBacklog:       16,
			WriteTimeoutMS:       5000,
			MaxComponentCarriers: 1,
			Agents:               []AgentConfig{{Addr: templateAgent, Label: "enbsim"}},
			Tenants: []TenantConfig{{
				ID:     uuid.NewString(),
				Name:   "default",
				Agents: []string{templateAgent},
			}},
		}
	case "enbsim":
		v = EnbsimConfig{
			Controller:    "127.0.0.1:2210",
			Agent:         templateAgent,
			HelloPeriodMS: 2000,
			UEs:           []uint32{0x46, 0x47},
		}
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	out, err := toml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
