package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/testutil/testlog"
)

func TestValidateHelloRequiresAgentID(t *testing.T) {
	testlog.Start(t)
	if err := Validate(protocol.New(0x1234, 1, protocol.DirectionInitiating, &protocol.Hello{})); err != nil {
		t.Fatalf("validate hello: %v", err)
	}
	err := Validate(protocol.New(0, 1, protocol.DirectionInitiating, &protocol.Hello{}))
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "header.agent_id" || verr.Kind != protocol.KindHello {
		t.Fatalf("unexpected validation error: %+v", verr)
	}
}

func TestValidateUEStateChangeRequiresRNTI(t *testing.T) {
	testlog.Start(t)
	msg := protocol.New(1, 1, protocol.DirectionInitiating, &protocol.UEStateChange{Type: protocol.UEStateActivated})
	if err := Validate(msg); err == nil {
		t.Fatalf("expected missing rnti error")
	}
	msg.Body.(*protocol.UEStateChange).Config.RNTI = 0x41
	if err := Validate(msg); err != nil {
		t.Fatalf("validate ue state change: %v", err)
	}
}

func TestValidateStatsRequestFrequency(t *testing.T) {
	testlog.Start(t)
	msg := protocol.New(1, 1, protocol.DirectionInitiating, &protocol.StatsRequest{ReportFrequency: 3})
	if err := Validate(msg); err == nil {
		t.Fatalf("expected invalid frequency error")
	}
	msg.Body.(*protocol.StatsRequest).ReportFrequency = protocol.ReportFrequencyOff
	if err := Validate(msg); err != nil {
		t.Fatalf("validate stats request: %v", err)
	}
}

func TestValidateEmptyMessage(t *testing.T) {
	testlog.Start(t)
	if err := Validate(nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
}

func TestReplyPairs(t *testing.T) {
	testlog.Start(t)
	pairs := map[protocol.Kind]protocol.Kind{
		protocol.KindEchoRequest:    protocol.KindEchoReply,
		protocol.KindConfigRequest:  protocol.KindConfigReply,
		protocol.KindStatsRequest:   protocol.KindStatsResponse,
		protocol.KindRRCMeasRequest: protocol.KindRRCMeasResponse,
	}
	for req, want := range pairs {
		got, ok := ReplyKind(req)
		if !ok || got != want {
			t.Fatalf("ReplyKind(%s) = %s,%v want %s", req, got, ok, want)
		}
	}
	if _, ok := ReplyKind(protocol.KindHello); ok {
		t.Fatalf("hello has no reply")
	}
}

func TestCatalogCoversEveryKind(t *testing.T) {
	testlog.Start(t)
	for _, k := range protocol.Kinds() {
		if _, ok := Lookup(k); !ok {
			t.Fatalf("kind %s missing from catalog", k)
		}
	}
	if AcceptsFromAgent(protocol.KindStatsRequest) {
		t.Fatalf("stats request is controller-originated")
	}
	if !AcceptsFromAgent(protocol.KindRRCMeasResponse) {
		t.Fatalf("rrc measurement response must be accepted from agents")
	}
}
