package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/testutil/testlog"
)

func TestBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	want := map[int]time.Duration{
		1: 250 * time.Millisecond,
		2: 500 * time.Millisecond,
		3: time.Second,
		6: 5 * time.Second,
	}
	for attempt, d := range want {
		if got := cfg.Delay(attempt, nil); got != d {
			t.Fatalf("attempt%d got=%v want=%v", attempt, got, d)
		}
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := cfg.Delay(2, rng)
	if got < 250*time.Millisecond || got > 750*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Retry(context.Background(), cfg, 5, nil, func(int) error {
		calls++
		if calls < 3 {
			return errors.New("refused")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("retry err=%v calls=%d", err, calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	sentinel := errors.New("refused")
	calls := 0
	err := Retry(context.Background(), cfg, 2, nil, func(int) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) || calls != 2 {
		t.Fatalf("retry err=%v calls=%d", err, calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := BackoffConfig{InitialDelay: time.Hour}
	err := Retry(ctx, cfg, 0, nil, func(int) error { return errors.New("refused") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBacklogBoundedFIFO(t *testing.T) {
	testlog.Start(t)
	b := NewBacklog(2)
	first := protocol.New(1, 1, protocol.DirectionInitiating, &protocol.EchoRequest{})
	second := protocol.New(1, 2, protocol.DirectionInitiating, &protocol.EchoRequest{})
	third := protocol.New(1, 3, protocol.DirectionInitiating, &protocol.EchoRequest{})
	if !b.Push(first) || !b.Push(second) {
		t.Fatalf("push within limit failed")
	}
	if b.Push(third) {
		t.Fatalf("push beyond limit accepted")
	}
	if b.Dropped() != 1 || b.Len() != 2 {
		t.Fatalf("unexpected backlog state len=%d dropped=%d", b.Len(), b.Dropped())
	}
	got := b.Drain()
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Fatalf("drain order mismatch: %+v", got)
	}
	if b.Len() != 0 {
		t.Fatalf("backlog not emptied")
	}
}

func TestConfigNormalize(t *testing.T) {
	testlog.Start(t)
	cfg := Config{AgentPeriod: 20 * time.Millisecond}.Normalize()
	if cfg.AgentPeriod != 20*time.Millisecond {
		t.Fatalf("explicit period overwritten: %v", cfg.AgentPeriod)
	}
	if cfg.HeartbeatInterval != 500*time.Millisecond || cfg.DeadAfterPeriods != 3 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.DeadAfter() != 60*time.Millisecond {
		t.Fatalf("unexpected dead-after: %v", cfg.DeadAfter())
	}
}
