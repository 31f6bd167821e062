// Package otp generates, hashes and verifies numeric one-time passcodes.
// It has no storage: callers keep only the hash returned by [Hash].
package otp
