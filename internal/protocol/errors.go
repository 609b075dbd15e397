package protocol

import "errors"

var (
	ErrUnsupportedVersion  = errors.New("protocol: unsupported version")
	ErrEmptyMessage        = errors.New("protocol: empty message")
	ErrMalformed           = errors.New("protocol: malformed field encoding")
	ErrMissingHeader       = errors.New("protocol: missing header")
	ErrMissingBody         = errors.New("protocol: missing body")
	ErrUnknownKind         = errors.New("protocol: unknown message kind")
	ErrFieldTypeMismatch   = errors.New("protocol: field type mismatch")
	ErrMessageTypeMismatch = errors.New("protocol: message type mismatch")
	ErrValueOverflow       = errors.New("protocol: value overflows field width")
)
