// Package protocol owns the controller/agent wire contract.
//
// Ownership boundary:
// - message header and kind catalog
// - typed message bodies
// - protobuf-wire encode/decode of a single frame body
//
// Length-prefix framing lives in protocol/frame; per-kind field rules
// live in protocol/schema.
package protocol
