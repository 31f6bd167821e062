// Package session stores ephemeral authentication sessions in Redis and
// defines the pure transitions applied to them.
//
// # Records and keys
//
// A [Session] is a flat JSON object keyed by its opaque id. Every key is
// built through [Keyspace]:
//
//	<prefix>:s:<id>                 session record
//	<prefix>:ix:<family>:<ident>    identifier index entry
//	<prefix>:u:<userID>             SIGNIN session set
//	<prefix>:claim:<id>             terminal-transition claim
//
// # Atomicity
//
// Multi-key transitions are expressed as a [Batch] and committed with
// [Store.Apply] (MULTI/EXEC). Rotation uses a single Lua script so that a
// replayed refresh token can never rotate a session twice.
//
// # What this package must NOT do
//
//   - Import authsession, jwt or directory (no upward imports).
//   - Store plaintext OTPs or passwords.
package session
