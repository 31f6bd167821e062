package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every backend failure surfaced by this package.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when a session, index entry or claim is absent.
// Expired and corrupt records are reported the same way.
var ErrNotFound = errors.New("session not found")

// rotateSigninScript replaces a SIGNIN session only while the old record
// still exists, so a replayed refresh token cannot rotate twice.
//
// KEYS: old session, new session, user set. ARGV: new blob, ttl ms, new id, old id.
const rotateSigninScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[3], ARGV[3])
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[3], ARGV[4])
return 1
`

var rotateSigninLua = redis.NewScript(rotateSigninScript)

// Store is the Redis-backed home of session records. TTL is the only
// garbage collection; there is no sweeper.
type Store struct {
	redis redis.UniversalClient
	keys  Keyspace
}

// NewStore creates a Store under the given key prefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis: client,
		keys:  NewKeyspace(prefix),
	}
}

// Keys exposes the keyspace used by the store.
func (s *Store) Keys() Keyspace { return s.keys }

// Create writes a record unconditionally. Writers always mint a fresh id, so
// no compare-and-swap is needed.
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.keys.Session(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a record. Misses and undecodable blobs both yield ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	data, err := s.redis.Get(ctx, s.keys.Session(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil || sess.ID != sessionID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.keys.Session(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Touch replaces an existing record and resets its TTL. It never recreates a
// record that was deleted in the meantime.
func (s *Store) Touch(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetXX(ctx, s.keys.Session(sess.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Update replaces an existing record keeping its remaining TTL.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	res, err := s.redis.SetArgs(ctx, s.keys.Session(sess.ID), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res != "OK" {
		return ErrNotFound
	}
	return nil
}

// Apply commits a batch in a single MULTI/EXEC so concurrent readers never
// observe half of a transition.
func (s *Store) Apply(ctx context.Context, b *Batch) error {
	if b == nil {
		return nil
	}
	if b.err != nil {
		return b.err
	}
	if b.Empty() {
		return nil
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.ops {
			op(ctx, pipe, s.keys)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RotateSignin atomically swaps oldID for next: the new record is written
// and tracked, the old one deleted and untracked. It returns ErrNotFound when
// oldID no longer exists, which is how refresh-token replay is detected.
func (s *Store) RotateSignin(ctx context.Context, oldID string, next *Session, ttl time.Duration) error {
	data, err := Encode(next)
	if err != nil {
		return err
	}
	res, err := rotateSigninLua.Run(
		ctx,
		s.redis,
		[]string{s.keys.Session(oldID), s.keys.Session(next.ID), s.keys.UserSessions(next.UserID)},
		data,
		ttl.Milliseconds(),
		next.ID,
		oldID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim reserves the terminal transition of a session for one caller.
// It reports false when another caller already holds the claim.
func (s *Store) Claim(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.keys.Claim(sessionID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// Release drops a claim after the terminal step could not complete.
func (s *Store) Release(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.keys.Claim(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// UserSessionIDs returns the tracked SIGNIN session ids of a user.
func (s *Store) UserSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.keys.UserSessions(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// GetMany loads several records in one pipeline, skipping misses.
func (s *Store) GetMany(ctx context.Context, sessionIDs []string) ([]*Session, error) {
	if len(sessionIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.keys.Session(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(sessionIDs))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil || sess.ID != sessionIDs[i] {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// DeleteAllForUser removes every tracked SIGNIN session of a user and the
// set itself in one MULTI/EXEC. An empty set is a no-op. A session created
// between the SMEMBERS read and the delete survives; it expires on its own
// or is caught by the next call.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.UserSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	b := NewBatch()
	for _, sid := range ids {
		b.Delete(sid)
	}
	b.DropUserSessions(userID)
	if err := s.Apply(ctx, b); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
