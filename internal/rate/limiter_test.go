package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	return New(rdb, "test", zerolog.Nop()), mr
}

func TestKeyString(t *testing.T) {
	if got := (Key{Action: "signin", IP: "1.2.3.4", Identifier: "a@x.com"}).String(); got != "rl:signin:1.2.3.4:a@x.com" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := (Key{Action: "reset"}).String(); got != "rl:reset:-" {
		t.Fatalf("unexpected key %q", got)
	}

	l := New(nil, "", zerolog.Nop())
	if got := l.RedisKey(Key{Action: "verify", IP: "::1"}); got != "ots:rl:verify:::1" {
		t.Fatalf("expected default prefix, got %q", got)
	}
}

func TestPrefixesKeepCountersApart(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	a := New(rdb, "tenant-a", zerolog.Nop())
	b := New(rdb, "tenant-b", zerolog.Nop())
	key := Key{Action: "signin", IP: "10.0.0.9", Identifier: "a@x.com"}
	rule := Rule{Limit: 1, Window: time.Minute}

	if d := a.Allow(ctx, key, rule); !d.Allowed {
		t.Fatalf("expected first hit on a to pass, got %+v", d)
	}
	if d := b.Allow(ctx, key, rule); !d.Allowed || d.Count != 1 {
		t.Fatalf("expected b to start its own window, got %+v", d)
	}
	if d := a.Allow(ctx, key, rule); d.Allowed {
		t.Fatalf("expected second hit on a to be denied, got %+v", d)
	}
	if !mr.Exists("tenant-a:rl:signin:10.0.0.9:a@x.com") || !mr.Exists("tenant-b:rl:signin:10.0.0.9:a@x.com") {
		t.Fatalf("expected one counter per prefix, got keys %v", mr.Keys())
	}

	if err := a.Reset(ctx, key); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if mr.Exists("tenant-a:rl:signin:10.0.0.9:a@x.com") || !mr.Exists("tenant-b:rl:signin:10.0.0.9:a@x.com") {
		t.Fatal("Reset must only clear its own prefix")
	}
}

func TestAllowFixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := Key{Action: "resend", IP: "10.0.0.1", Identifier: "a@x.com"}
	rule := Rule{Limit: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		d := l.Allow(ctx, key, rule)
		if !d.Allowed || d.Count != int64(i) {
			t.Fatalf("hit %d: expected allowed, got %+v", i, d)
		}
	}
	d := l.Allow(ctx, key, rule)
	if d.Allowed {
		t.Fatalf("expected 4th hit to be denied, got %+v", d)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %s", d.RetryAfter)
	}

	mr.FastForward(61 * time.Second)
	if d := l.Allow(ctx, key, rule); !d.Allowed || d.Count != 1 {
		t.Fatalf("expected new window after expiry, got %+v", d)
	}
}

func TestAllowRepairsMissingTTL(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	key := Key{Action: "signin", IP: "10.0.0.2"}

	if err := mr.Set(l.RedisKey(key), "1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d := l.Allow(ctx, key, Rule{Limit: 5, Window: time.Minute})
	if !d.Allowed || d.Count != 2 {
		t.Fatalf("unexpected decision %+v", d)
	}
	if ttl := mr.TTL(l.RedisKey(key)); ttl != time.Minute {
		t.Fatalf("expected ttl to be repaired, got %s", ttl)
	}
}

func TestAllowFailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	d := l.Allow(context.Background(), Key{Action: "signin", IP: "10.0.0.3"}, Rule{Limit: 1, Window: time.Minute})
	if !d.Allowed || !d.FailedOpen {
		t.Fatalf("expected fail-open decision, got %+v", d)
	}
}

func TestDisabledRuleAlwaysAllows(t *testing.T) {
	l, mr := newTestLimiter(t)
	d := l.Allow(context.Background(), Key{Action: "verify"}, Rule{})
	if !d.Allowed {
		t.Fatal("expected zero rule to allow")
	}
	if len(mr.Keys()) != 0 {
		t.Fatal("disabled rule must not touch redis")
	}
}
