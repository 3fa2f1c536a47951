// Package database provides SQLite connection management and schema
// migrations for the GpioManager server.
//
// It wraps database/sql with:
//   - Connection setup (WAL mode, busy timeout, foreign keys)
//   - Embedded SQL migrations applied at startup
//   - Health checks and graceful close
//
// SQLite is used in single-writer mode: the pool is capped at one
// connection, which matches SQLite's locking model and keeps the access
// pattern simple. All repositories in this codebase go through the same
// *DB and rely on the busy timeout instead of application-level locking.
package database
