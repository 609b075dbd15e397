package schema

import (
	"fmt"

	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Origin says which side of the link may initiate a kind.
type Origin int

const (
	OriginController Origin = iota
	OriginAgent
	OriginEither
)

type Entry struct {
	Origin Origin
	Reply  protocol.Kind
}

type Requirement struct {
	Field string
	OK    func(*protocol.Message) bool
}

type ValidationError struct {
	Kind   protocol.Kind
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: kind=%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("schema: kind=%s field=%s: %s", e.Kind, e.Field, e.Reason)
}

var catalog = map[protocol.Kind]Entry{
	protocol.KindHello:           {Origin: OriginAgent},
	protocol.KindBye:             {Origin: OriginEither},
	protocol.KindEchoRequest:     {Origin: OriginEither, Reply: protocol.KindEchoReply},
	protocol.KindEchoReply:       {Origin: OriginEither},
	protocol.KindConfigRequest:   {Origin: OriginController, Reply: protocol.KindConfigReply},
	protocol.KindConfigReply:     {Origin: OriginAgent},
	protocol.KindUEStateChange:   {Origin: OriginAgent},
	protocol.KindStatsRequest:    {Origin: OriginController, Reply: protocol.KindStatsResponse},
	protocol.KindStatsResponse:   {Origin: OriginAgent},
	protocol.KindRRCMeasRequest:  {Origin: OriginController, Reply: protocol.KindRRCMeasResponse},
	protocol.KindRRCMeasResponse: {Origin: OriginAgent},
}

var requirements = map[protocol.Kind][]Requirement{
	protocol.KindHello: {
		{"header.agent_id", func(m *protocol.Message) bool { return m.Header.AgentID != 0 }},
	},
	protocol.KindUEStateChange: {
		{"config.rnti", func(m *protocol.Message) bool {
			return m.Body.(*protocol.UEStateChange).Config.RNTI != 0
		}},
	},
	protocol.KindStatsRequest: {
		{"report_frequency", func(m *protocol.Message) bool {
			switch m.Body.(*protocol.StatsRequest).ReportFrequency {
			case protocol.ReportFrequencyOnce, protocol.ReportFrequencyPeriodical, protocol.ReportFrequencyOff:
				return true
			}
			return false
		}},
	},
	protocol.KindRRCMeasRequest: {
		{"rnti", func(m *protocol.Message) bool { return m.Body.(*protocol.RRCMeasRequest).RNTI != 0 }},
		{"carrier_frequency", func(m *protocol.Message) bool {
			return m.Body.(*protocol.RRCMeasRequest).CarrierFrequency != 0
		}},
	},
	protocol.KindRRCMeasResponse: {
		{"rnti", func(m *protocol.Message) bool { return m.Body.(*protocol.RRCMeasResponse).RNTI != 0 }},
	},
}

func Lookup(kind protocol.Kind) (Entry, bool) {
	e, ok := catalog[kind]
	return e, ok
}

// ReplyKind returns the kind that answers a request kind.
func ReplyKind(kind protocol.Kind) (protocol.Kind, bool) {
	e, ok := catalog[kind]
	if !ok || e.Reply == 0 {
		return 0, false
	}
	return e.Reply, true
}

// AcceptsFromAgent reports whether an agent may send kind.
func AcceptsFromAgent(kind protocol.Kind) bool {
	e, ok := catalog[kind]
	return ok && e.Origin != OriginController
}

// Validate enforces per-kind field requirements on a decoded message.
// Fields without a requirement are not checked.
func Validate(msg *protocol.Message) error {
	if msg == nil || msg.Body == nil {
		return ValidationError{Reason: "empty message"}
	}
	kind := msg.Kind()
	if _, ok := catalog[kind]; !ok {
		log.Error().Stringer("kind", kind).Msg("schema.Validate unknown kind")
		return ValidationError{Kind: kind, Reason: "unknown kind"}
	}
	for _, req := range requirements[kind] {
		if !req.OK(msg) {
			log.Debug().Stringer("kind", kind).Str("field", req.Field).Msg("schema.Validate missing field")
			return ValidationError{Kind: kind, Field: req.Field, Reason: "missing or invalid required field"}
		}
	}
	return nil
}
