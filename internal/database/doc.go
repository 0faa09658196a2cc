// Package database implements the Postgres-backed event store and
// subscription repository on pgx, with tern migrations applied under a
// Postgres advisory lock so concurrent instances don't race on startup.
package database
