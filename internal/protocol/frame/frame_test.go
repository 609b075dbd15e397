package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestLengthPrefixRoundTrip(t *testing.T) {
	for _, n := range []uint32{0, 1, 255, 256, 65535, 1 << 24, 1<<32 - 1} {
		p := BuildLengthPrefix(n)
		got, err := ParseLengthPrefix(p[:])
		if err != nil {
			t.Fatalf("parse %d: %v", n, err)
		}
		if got != n {
			t.Fatalf("round trip mismatch: got=%d want=%d", got, n)
		}
	}
}

func TestLengthPrefixIsBigEndian(t *testing.T) {
	p := BuildLengthPrefix(0x01020304)
	if !bytes.Equal(p[:], []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected prefix: %x", p)
	}
	if _, err := ParseLengthPrefix([]byte{0, 1}); !errors.Is(err, ErrShortPrefix) {
		t.Fatalf("expected ErrShortPrefix, got %v", err)
	}
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello"), DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != PrefixLen+5 {
		t.Fatalf("unexpected wire length %d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("body mismatch: %q", out)
	}
}

// oneByteReader hands out a single byte per Read to exercise partial reads.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestReaderHandlesFragmentedStream(t *testing.T) {
	var wire []byte
	wire = Append(wire, []byte("first"))
	wire = Append(wire, []byte("second-body"))

	fr := NewReader(oneByteReader{bytes.NewReader(wire)}, DefaultLimits())
	if fr.State() != AwaitingLength {
		t.Fatalf("expected awaiting_length, got %s", fr.State())
	}
	for _, want := range []string{"first", "second-body"} {
		got, err := fr.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q want %q", got, want)
		}
		if fr.State() != AwaitingLength {
			t.Fatalf("reader not realigned: %s", fr.State())
		}
	}
	if _, err := fr.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at clean boundary, got %v", err)
	}
}

func TestReaderShortInputs(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0}), DefaultLimits()); !errors.Is(err, ErrShortPrefix) {
		t.Fatalf("expected ErrShortPrefix, got %v", err)
	}
	wire := Append(nil, []byte("truncated"))
	if _, err := ReadFrame(bytes.NewReader(wire[:len(wire)-2]), DefaultLimits()); !errors.Is(err, ErrShortBody) {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}
}

func TestReaderEmptyFrameKeepsAlignment(t *testing.T) {
	var wire []byte
	wire = append(wire, 0, 0, 0, 0)
	wire = Append(wire, []byte("next"))

	fr := NewReader(bytes.NewReader(wire), DefaultLimits())
	if _, err := fr.Next(); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
	got, err := fr.Next()
	if err != nil || string(got) != "next" {
		t.Fatalf("stream lost alignment: %q %v", got, err)
	}
}

func TestLimitsRejectOversizedFrames(t *testing.T) {
	limits := Limits{MaxBodyBytes: 8}
	if err := WriteFrame(io.Discard, make([]byte, 9), limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge on write, got %v", err)
	}
	wire := Append(nil, make([]byte, 9))
	if _, err := ReadFrame(bytes.NewReader(wire), limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge on read, got %v", err)
	}
}
