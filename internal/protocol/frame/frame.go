package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PrefixLen is the size of the big-endian body length that precedes
// every message on the wire.
const PrefixLen = 4

var (
	ErrShortPrefix   = errors.New("frame: short length prefix")
	ErrShortBody     = errors.New("frame: short body")
	ErrEmptyFrame    = errors.New("frame: zero-length body")
	ErrFrameTooLarge = errors.New("frame: body too large")
)

// State is the position of a Reader within the current frame.
type State int

const (
	AwaitingLength State = iota
	AwaitingBody
)

func (s State) String() string {
	switch s {
	case AwaitingLength:
		return "awaiting_length"
	case AwaitingBody:
		return "awaiting_body"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: 4 * 1024 * 1024}
}

func BuildLengthPrefix(n uint32) [PrefixLen]byte {
	var p [PrefixLen]byte
	binary.BigEndian.PutUint32(p[:], n)
	return p
}

func ParseLengthPrefix(b []byte) (uint32, error) {
	if len(b) < PrefixLen {
		return 0, ErrShortPrefix
	}
	return binary.BigEndian.Uint32(b[:PrefixLen]), nil
}

// Append writes prefix+body to dst.
func Append(dst, body []byte) []byte {
	p := BuildLengthPrefix(uint32(len(body)))
	dst = append(dst, p[:]...)
	return append(dst, body...)
}

// Reader splits a byte stream into frame bodies. It alternates between
// reading a length prefix and reading exactly that many body bytes.
type Reader struct {
	r      io.Reader
	limits Limits
	state  State
	want   uint32
	prefix [PrefixLen]byte
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{r: r, limits: limits}
}

func (fr *Reader) State() State {
	return fr.state
}

// Next returns the next frame body. A clean end of stream between frames
// is reported as io.EOF. ErrEmptyFrame leaves the stream aligned so the
// caller may keep reading; ErrFrameTooLarge does not.
func (fr *Reader) Next() ([]byte, error) {
	if fr.state == AwaitingLength {
		if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrShortPrefix
			}
			return nil, err
		}
		n, _ := ParseLengthPrefix(fr.prefix[:])
		if n == 0 {
			return nil, ErrEmptyFrame
		}
		if fr.limits.MaxBodyBytes > 0 && n > fr.limits.MaxBodyBytes {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, fr.limits.MaxBodyBytes)
		}
		fr.want = n
		fr.state = AwaitingBody
	}

	body := make([]byte, fr.want)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortBody
		}
		return nil, err
	}
	fr.state = AwaitingLength
	fr.want = 0
	return body, nil
}

func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	return NewReader(r, limits).Next()
}

// WriteFrame emits prefix and body in a single Write call.
func WriteFrame(w io.Writer, body []byte, limits Limits) error {
	if limits.MaxBodyBytes > 0 && uint64(len(body)) > uint64(limits.MaxBodyBytes) {
		return ErrFrameTooLarge
	}
	if len(body) == 0 {
		return ErrEmptyFrame
	}
	_, err := w.Write(Append(make([]byte, 0, PrefixLen+len(body)), body))
	return err
}
