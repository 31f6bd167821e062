// Package middleware adapts authsession.Engine access-token validation to
// net/http.
//
// [RequireAccess] reads the Authorization header, calls
// Engine.ValidateAccess and injects the validated claims into the request
// context. Whether the session store is consulted is decided by the
// engine's StrictAccess setting, not here.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.ValidateAccess.
package middleware
