package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// sessionIDSize is the raw entropy of a session id (128 bits).
const sessionIDSize = 16

// SessionID is the raw form of an opaque session identifier.
type SessionID [sessionIDSize]byte

// NewSessionID draws a fresh random id.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes an id previously produced by String.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// MintSessionID returns a fresh id in its string form.
func MintSessionID() (string, error) {
	sid, err := NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}
