// Package redis holds the live-session store. Sessions, participants and
// votes live in Redis hashes; snapshots fan out across instances via Pub/Sub.
// All clients carry metrics and circuit breaker hooks.
package redis
