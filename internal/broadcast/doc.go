// Package broadcast fans session snapshots out to WebSocket clients.
//
// A single actor goroutine owns the client maps, so registration, snapshot
// fan-out and shutdown never race. Each client gets its own writer goroutine
// with ping/pong keepalive and an idle timeout; clients that cannot keep up
// with the snapshot stream are evicted.
package broadcast
