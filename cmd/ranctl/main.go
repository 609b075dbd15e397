package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/danmuck/ranctl/internal/controller"
	"github.com/danmuck/ranctl/internal/logging"
	"github.com/danmuck/ranctl/internal/observability"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/ranctl/config.toml", "path to ranctl config")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.RegisterMetrics()

	cfg := runtimeConfig{Service: controller.DefaultServiceConfig()}
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ranctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "ranctl: %v\n", err)
		os.Exit(1)
	} else {
		log.Warn().Str("path", *configPath).Msg("ranctl config not found, using defaults")
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ranctl: %v\n", err)
		os.Exit(1)
	}
	logRegistry(reg)

	svc := controller.NewServiceWithConfig(reg, cfg.Service)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ranctl: %v\n", err)
		os.Exit(1)
	}
}

func logRegistry(reg *ran.Registry) {
	for _, a := range reg.Agents() {
		log.Info().Stringer("agent", a.Addr).Str("label", a.Label).Msg("ranctl agent registered")
	}
	for _, t := range reg.Tenants() {
		log.Info().Str("tenant", t.ID.String()).Str("name", t.Name).Int("agents", len(t.Agents)).Msg("ranctl tenant registered")
	}
}
