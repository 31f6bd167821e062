// Package password hashes and verifies account passwords.
//
// [Argon2] is the default [Hasher] and encodes in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] exists for directories that already hold bcrypt hashes. Both
// report weaker stored parameters through NeedsUpgrade so callers can
// re-hash after a successful sign-in.
//
// This package never stores passwords and never logs them.
package password
