// Package session owns controller<->agent link tuning and helpers.
//
// Ownership boundary:
// - heartbeat/liveness and write timeouts
// - reconnect backoff for agent-side clients
// - the pre-bind backlog of frames received before an agent is bound
package session
