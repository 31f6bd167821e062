// Package authsession is a session and one-time-passcode engine for
// multi-channel identities (email, username or phone number).
//
// It runs three flow families on top of Redis: signup verification,
// password reset and sign-in. OTP flows hand the client an opaque session
// id; sign-in hands out an access/refresh token pair. Engine methods are
// safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// authsession is the public surface: [Engine], [Builder], [Config] and the
// value types around them. Session records, the identifier index and the
// pure state transitions live in the session package; tokens in jwt; codes
// in otp. User records are never owned here; they are read and patched
// through a [directory.Directory] supplied by the application.
//
// # Consistency model
//
// No flow takes a lock. Every transition loads at most one session,
// computes the next state with a pure function and commits it in a single
// MULTI/EXEC or Lua call, so a concurrent reader never sees half of it.
// Counters (resends, wrong guesses) are last-writer-wins. Terminal
// transitions are guarded: OTP verification by a per-session claim key,
// rotation by a conditional script, logout by an owner check.
//
// # What this package must NOT do
//
//   - Log or store a plaintext OTP or password.
//   - Reveal through ForgotPassword whether an account exists.
//   - Fail a flow because OTP delivery failed, or because the rate limiter
//     could not reach Redis.
package authsession
