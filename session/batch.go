package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type batchOp func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace)

// Batch collects the writes of one logical transition. It is committed with
// Store.Apply as a single MULTI/EXEC. Encoding errors are deferred to Apply.
type Batch struct {
	ops []batchOp
	err error
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Empty reports whether the batch has no writes.
func (b *Batch) Empty() bool {
	return b == nil || len(b.ops) == 0
}

// Len returns the number of queued writes.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Put writes a session record with a TTL.
func (b *Batch) Put(sess *Session, ttl time.Duration) *Batch {
	data, err := Encode(sess)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	id := sess.ID
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace) {
		pipe.Set(ctx, keys.Session(id), data, ttl)
	})
	return b
}

// Delete removes a session record. A claim held on it is left to expire so
// that a racer which loaded the record earlier still loses the claim.
func (b *Batch) Delete(sessionID string) *Batch {
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace) {
		pipe.Del(ctx, keys.Session(sessionID))
	})
	return b
}

// Link points identifier at sessionID within family.
func (b *Batch) Link(family Family, identifier, sessionID string, ttl time.Duration) *Batch {
	if family == "" || identifier == "" {
		return b
	}
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace) {
		pipe.Set(ctx, keys.Identifier(family, identifier), sessionID, ttl)
	})
	return b
}

// LinkAll points every identifier of the identity at sessionID.
func (b *Batch) LinkAll(family Family, id Identity, sessionID string, ttl time.Duration) *Batch {
	for _, ident := range id.Identifiers() {
		b.Link(family, ident, sessionID, ttl)
	}
	return b
}

// Unlink removes identifier-index entries.
func (b *Batch) Unlink(family Family, identifiers ...string) *Batch {
	if family == "" {
		return b
	}
	for _, ident := range identifiers {
		if ident == "" {
			continue
		}
		ident := ident
		b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace) {
			pipe.Del(ctx, keys.Identifier(family, ident))
		})
	}
	return b
}

// Track adds a SIGNIN session id to the user's session set.
func (b *Batch) Track(userID, sessionID string) *Batch {
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace) {
		pipe.SAdd(ctx, keys.UserSessions(userID), sessionID)
	})
	return b
}

// Untrack removes a SIGNIN session id from the user's session set.
func (b *Batch) Untrack(userID, sessionID string) *Batch {
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace) {
		pipe.SRem(ctx, keys.UserSessions(userID), sessionID)
	})
	return b
}

// DropUserSessions deletes the user's session set itself.
func (b *Batch) DropUserSessions(userID string) *Batch {
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner, keys Keyspace) {
		pipe.Del(ctx, keys.UserSessions(userID))
	})
	return b
}
