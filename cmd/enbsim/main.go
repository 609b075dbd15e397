package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/ranctl/internal/agentsim"
	"github.com/danmuck/ranctl/internal/config"
	"github.com/danmuck/ranctl/internal/logging"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:2210", "controller address")
	agent := flag.String("agent", "00:00:00:00:a1:b2", "agent address")
	period := flag.Duration("hello", 2*time.Second, "hello period")
	ues := flag.String("ues", "0x46,0x47", "comma-separated RNTIs attached at start")
	configPath := flag.String("config", "", "optional enbsim config; overrides the other flags")
	flag.Parse()

	logging.ConfigureRuntime()
	if *configPath != "" {
		cfg, err := config.LoadEnbsimConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "enbsim: %v\n", err)
			os.Exit(1)
		}
		*addr = cfg.Controller
		*agent = cfg.Agent
		*period = time.Duration(cfg.HelloPeriodMS) * time.Millisecond
		rntis := make([]string, 0, len(cfg.UEs))
		for _, rnti := range cfg.UEs {
			rntis = append(rntis, strconv.FormatUint(uint64(rnti), 10))
		}
		*ues = strings.Join(rntis, ",")
	}
	if err := run(*addr, *agent, *period, *ues); err != nil {
		fmt.Fprintf(os.Stderr, "enbsim: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, agent string, period time.Duration, ues string) error {
	ether, err := ran.ParseEtherAddress(agent)
	if err != nil {
		return err
	}
	cfg := agentsim.DefaultConfig()
	cfg.Address = addr
	cfg.AgentID = ether.ID()
	cfg.HelloPeriod = period
	for i, raw := range strings.Split(ues, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		rnti, err := strconv.ParseUint(raw, 0, 16)
		if err != nil {
			return fmt.Errorf("ues: %q: %w", raw, err)
		}
		cfg.UEs = append(cfg.UEs, protocol.UEConfig{
			RNTI:             uint32(rnti),
			IMSI:             222930000000001 + uint64(i),
			TransmissionMode: 1,
			Capabilities:     &protocol.UECapabilities{Category: 4},
		})
	}

	sim, err := agentsim.New(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := sim.Connect(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = sim.Bye()
	}()
	go func() {
		for range sim.Received {
		}
	}()
	return sim.Run(context.Background())
}
