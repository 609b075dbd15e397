package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// writer appends protobuf wire fields. Zero scalars are omitted.
type writer struct {
	b []byte
}

func (w *writer) uint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, v)
}

func (w *writer) sint(num protowire.Number, v int32) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, protowire.EncodeZigZag(int64(v)))
}

func (w *writer) boolean(num protowire.Number, v bool) {
	if !v {
		return
	}
	w.uint(num, protowire.EncodeBool(v))
}

func (w *writer) str(num protowire.Number, v string) {
	if v == "" {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendString(w.b, v)
}

func (w *writer) packed(num protowire.Number, vs []uint32) {
	if len(vs) == 0 {
		return
	}
	var inner []byte
	for _, v := range vs {
		inner = protowire.AppendVarint(inner, uint64(v))
	}
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendBytes(w.b, inner)
}

// message emits a nested message, even when it encodes to zero bytes.
func (w *writer) message(num protowire.Number, fn func(*writer)) {
	var inner writer
	fn(&inner)
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendBytes(w.b, inner.b)
}

// field is one decoded tag/value pair.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	raw []byte
}

func (f field) mismatch(want protowire.Type) error {
	return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrFieldTypeMismatch, f.num, f.typ, want)
}

func (f field) uint32() (uint32, error) {
	if f.typ != protowire.VarintType {
		return 0, f.mismatch(protowire.VarintType)
	}
	if f.v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %d", ErrValueOverflow, f.num)
	}
	return uint32(f.v), nil
}

func (f field) uint64() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, f.mismatch(protowire.VarintType)
	}
	return f.v, nil
}

func (f field) sint32() (int32, error) {
	if f.typ != protowire.VarintType {
		return 0, f.mismatch(protowire.VarintType)
	}
	v := protowire.DecodeZigZag(f.v)
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: field %d", ErrValueOverflow, f.num)
	}
	return int32(v), nil
}

func (f field) boolean() (bool, error) {
	if f.typ != protowire.VarintType {
		return false, f.mismatch(protowire.VarintType)
	}
	return protowire.DecodeBool(f.v), nil
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.mismatch(protowire.BytesType)
	}
	return f.raw, nil
}

func (f field) str() (string, error) {
	b, err := f.bytes()
	return string(b), err
}

// appendUint32s accepts both packed and unpacked repeated encodings.
func (f field) appendUint32s(dst []uint32) ([]uint32, error) {
	switch f.typ {
	case protowire.VarintType:
		v, err := f.uint32()
		if err != nil {
			return dst, err
		}
		return append(dst, v), nil
	case protowire.BytesType:
		b := f.raw
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return dst, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			if v > math.MaxUint32 {
				return dst, fmt.Errorf("%w: field %d", ErrValueOverflow, f.num)
			}
			dst = append(dst, uint32(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, f.mismatch(protowire.BytesType)
	}
}

// readFields walks b and calls fn for every varint or length-delimited
// field. Fields of other wire types are skipped.
func readFields(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
