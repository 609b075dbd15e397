// Package controller terminates agent TCP links.
//
// Service accepts connections and owns the admin HTTP surface. Each
// Connection runs one reader goroutine that frames, decodes, and
// dispatches messages in arrival order. The first HELLO binds the
// connection to a registered ran.Agent. Responses are routed through
// Server to the module workers registered for their kind.
package controller
