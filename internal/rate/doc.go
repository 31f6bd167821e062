// Package rate implements the fixed-window limiter shared by every flow.
//
// # Window semantics
//
// INCR, then EXPIRE on the first hit of a window. Keys are built by [Limiter.RedisKey]:
//
//	<prefix>:rl:<action>:<ip>[:<identifier>]
//
// Counters may overshoot slightly under concurrent hits. On any Redis error
// [Limiter.Allow] permits the request and logs a warning.
package rate
