package session

// Keyspace builds every Redis key the session layer touches. Business code
// never formats keys itself.
type Keyspace struct {
	prefix string
}

// NewKeyspace returns a Keyspace rooted at prefix. An empty prefix falls back to "ots".
func NewKeyspace(prefix string) Keyspace {
	if prefix == "" {
		prefix = "ots"
	}
	return Keyspace{prefix: prefix}
}

// Prefix returns the namespace root.
func (k Keyspace) Prefix() string { return k.prefix }

// Session is the key of a session record.
func (k Keyspace) Session(sessionID string) string {
	return k.prefix + ":s:" + sessionID
}

// Identifier is the key of an identifier-index entry within a flow family.
func (k Keyspace) Identifier(family Family, identifier string) string {
	return k.prefix + ":ix:" + string(family) + ":" + identifier
}

// UserSessions is the key of the per-user SIGNIN session set.
func (k Keyspace) UserSessions(userID string) string {
	return k.prefix + ":u:" + userID
}

// Claim is the key guarding a terminal transition of a session.
func (k Keyspace) Claim(sessionID string) string {
	return k.prefix + ":claim:" + sessionID
}
