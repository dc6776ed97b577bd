// Package server wires the HTTP surface: the planning REST API, live session
// endpoints, the WebSocket fan-out, health probes and metrics. Handlers return
// structured errors; the errors middleware maps them to status codes.
package server
