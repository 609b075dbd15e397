package protocol

import "fmt"

// Version is the protocol revision carried in every header.
const Version uint32 = 1

// Kind identifies the message body carried by a frame. The set is closed.
type Kind uint32

const (
	KindHello Kind = iota + 1
	KindBye
	KindEchoRequest
	KindEchoReply
	KindConfigRequest
	KindConfigReply
	KindUEStateChange
	KindStatsRequest
	KindStatsResponse
	KindRRCMeasRequest
	KindRRCMeasResponse
)

var kindNames = map[Kind]string{
	KindHello:           "hello",
	KindBye:             "bye",
	KindEchoRequest:     "echo_request",
	KindEchoReply:       "echo_reply",
	KindConfigRequest:   "config_request",
	KindConfigReply:     "config_reply",
	KindUEStateChange:   "ue_state_change",
	KindStatsRequest:    "stats_request",
	KindStatsResponse:   "stats_response",
	KindRRCMeasRequest:  "rrc_meas_request",
	KindRRCMeasResponse: "rrc_meas_response",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Kinds returns every known kind in wire order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindHello; k <= KindRRCMeasResponse; k++ {
		out = append(out, k)
	}
	return out
}

// Direction distinguishes requests from replies and unsolicited reports.
type Direction uint32

const (
	DirectionInitiating Direction = iota
	DirectionSuccessfulOutcome
	DirectionUnsuccessfulOutcome
)

// Header precedes every body. AgentID is the agent's 48-bit identifier.
type Header struct {
	Version uint32
	Type    Kind
	XID     uint32
	AgentID uint64
}

// Message is one decoded frame body.
type Message struct {
	Header    Header
	Direction Direction
	Body      Body
}

// Kind reports the body kind, falling back to the header type.
func (m *Message) Kind() Kind {
	if m == nil {
		return 0
	}
	if m.Body != nil {
		return m.Body.Kind()
	}
	return m.Header.Type
}

// New builds a message whose header type matches body.
func New(agentID uint64, xid uint32, dir Direction, body Body) *Message {
	return &Message{
		Header: Header{
			Version: Version,
			Type:    body.Kind(),
			XID:     xid,
			AgentID: agentID,
		},
		Direction: dir,
		Body:      body,
	}
}

// Body is implemented by every message payload type.
type Body interface {
	Kind() Kind
}

// Status is the return code carried by response bodies. Zero is success.
type Status uint32

const (
	StatusOK Status = iota
	StatusFailure
	StatusNotSupported
)

// Outcome is implemented by bodies that carry a return code.
type Outcome interface {
	Body
	Outcome() (Status, string)
}
