// Package app is the application layer, the only component that references
// multiple domain components. It orchestrates all use cases: backlog and
// sprint planning on Postgres, live estimation sessions on Redis, and the
// leader-elected cleanup of abandoned sessions.
package app
