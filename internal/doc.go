// Package internal contains helpers that are private to authsession.
//
// # Sub-packages
//
//   - identifier: normalization of emails, usernames and phone numbers
//   - rate: Redis-backed fixed-window rate limiting
//
// # What this package must NOT do
//
//   - Export types that appear in the public authsession API.
package internal
