package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Index maps a normalized identifier to the session currently active for it,
// one namespace per flow family. It lets a client resume a flow without
// holding on to the opaque session id.
type Index struct {
	redis redis.UniversalClient
	keys  Keyspace
}

// NewIndex creates an Index sharing the store's key prefix.
func NewIndex(client redis.UniversalClient, prefix string) *Index {
	return &Index{redis: client, keys: NewKeyspace(prefix)}
}

// Link overwrites the entry for identifier. The previous session stays in
// the store until its TTL lapses but is no longer discoverable here.
func (i *Index) Link(ctx context.Context, family Family, identifier, sessionID string, ttl time.Duration) error {
	if err := i.redis.Set(ctx, i.keys.Identifier(family, identifier), sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Resolve returns the most recently linked session id, or ErrNotFound.
func (i *Index) Resolve(ctx context.Context, family Family, identifier string) (string, error) {
	if family == "" || identifier == "" {
		return "", ErrNotFound
	}
	sid, err := i.redis.Get(ctx, i.keys.Identifier(family, identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if sid == "" {
		return "", ErrNotFound
	}
	return sid, nil
}

// Unlink deletes the entries for the given identifiers.
func (i *Index) Unlink(ctx context.Context, family Family, identifiers ...string) error {
	keys := make([]string, 0, len(identifiers))
	for _, ident := range identifiers {
		if ident != "" {
			keys = append(keys, i.keys.Identifier(family, ident))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := i.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
