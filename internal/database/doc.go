// Package database implements the durable repositories on PostgreSQL via
// pgx. Migrations are idempotent and run under an advisory lock at startup.
package database
