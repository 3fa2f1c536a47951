// Package auth provides credential hashing and the access-token session
// layer for the GpioManager server.
//
// # Credential hashing
//
// Passwords are hashed with PBKDF2-SHA256 using a random 32-byte salt and
// a random iteration count. The salt and iteration count are stored
// alongside the hash in the users table.
//
// # Access tokens
//
// Sessions are opaque bearer tokens held in an in-memory store that is
// authoritative at runtime. Every successful verification slides the
// expiry forward by the configured validity window. The SQLite copy is a
// durable backing written asynchronously: a write queue drained by a
// single worker goroutine, so persistence latency or failure never blocks
// or fails a request. At startup the store is reconciled from the
// database so sessions survive a restart.
package auth
