package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt is returned by Decode for records that cannot be trusted.
var ErrCorrupt = errors.New("session record corrupt")

// Encode serializes a session to its flat JSON form.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if !s.Type.Valid() {
		return nil, fmt.Errorf("encode session: unknown type %q", s.Type)
	}
	return json.Marshal(s)
}

// Decode parses a stored record. Anything that does not decode into a
// session with a known type and an id is reported as ErrCorrupt.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.ID == "" || !s.Type.Valid() {
		return nil, ErrCorrupt
	}
	return &s, nil
}
