package authsession

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/password"
	"github.com/MrEthical07/authsession/session"
)

func TestSigninTwoDevicesLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.seedUser(t, "two@x.com", true)

	phone := env.signin(t, "two@x.com")
	laptop := env.signin(t, "TWO@x.com")
	if phone.SessionID == laptop.SessionID {
		t.Fatal("expected independent session ids")
	}

	ids, err := env.engine.store.UserSessionIDs(ctx, rec.ID)
	if err != nil {
		t.Fatalf("UserSessionIDs failed: %v", err)
	}
	sort.Strings(ids)
	want := []string{phone.SessionID, laptop.SessionID}
	sort.Strings(want)
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("expected %v in the user set, got %v", want, ids)
	}

	active, err := env.engine.ActiveSessions(ctx, rec.ID)
	if err != nil || len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d (%v)", len(active), err)
	}

	n, err := env.engine.LogoutAll(ctx, rec.ID)
	if err != nil || n != 2 {
		t.Fatalf("LogoutAll: n=%d err=%v", n, err)
	}
	for _, sid := range want {
		if _, err := env.engine.Lookup(ctx, sid); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected %s to be gone, got %v", sid, err)
		}
	}
	if count, _ := env.engine.ActiveSessionCount(ctx, rec.ID); count != 0 {
		t.Fatalf("expected the user set to be dropped, got %d", count)
	}
	if _, err := env.engine.Refresh(ctx, phone.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected refresh after logout-all to fail, got %v", err)
	}

	if n, err := env.engine.LogoutAll(ctx, rec.ID); err != nil || n != 0 {
		t.Fatalf("LogoutAll on empty set must be a no-op: n=%d err=%v", n, err)
	}
}

func TestSigninChecks(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.seedUser(t, "ok@x.com", true)
	env.seedUser(t, "unverified@x.com", false)
	off := env.seedUser(t, "off@x.com", true)
	if _, err := env.dir.UpdateUserByID(ctx, off.ID, directory.Patch{Active: directory.Bool(false)}); err != nil {
		t.Fatalf("UpdateUserByID failed: %v", err)
	}
	if _, err := env.dir.CreateUser(ctx, directory.CreateInput{Email: "fed@x.com", Provider: "github", Active: true}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	tests := []struct {
		ident  string
		secret string
		want   error
		class  error
	}{
		{"nobody@x.com", testPassword, ErrInvalidCredentials, ErrUnauthorized},
		{"ok@x.com", "wrong-password-123", ErrInvalidCredentials, ErrUnauthorized},
		{"unverified@x.com", testPassword, ErrAccountUnverified, ErrForbidden},
		{"off@x.com", testPassword, ErrAccountInactive, ErrForbidden},
		{"off@x.com", "wrong-password-123", ErrInvalidCredentials, ErrUnauthorized},
		{"fed@x.com", testPassword, ErrFederatedAccount, ErrInvalidState},
	}
	for _, tt := range tests {
		_, err := env.engine.Signin(ctx, tt.ident, tt.secret)
		if !errors.Is(err, tt.want) || !errors.Is(err, tt.class) {
			t.Fatalf("Signin(%s): expected %v, got %v", tt.ident, tt.want, err)
		}
	}

	pair := env.signin(t, "ok@x.com")
	claims, err := env.engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if claims.SessionID != pair.SessionID || claims.UserID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Fatal("expected expiry after issue time")
	}
}

func TestRefreshKeepsSessionAndToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedUser(t, "ref@x.com", true)
	pair := env.signin(t, "ref@x.com")

	env.clock.Advance(2 * 24 * time.Hour)
	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.SessionID != pair.SessionID || next.RefreshToken != pair.RefreshToken {
		t.Fatal("refresh must keep the session id and the refresh token")
	}
	if next.AccessToken == "" {
		t.Fatal("expected a new access token")
	}
	if got := env.session(t, pair.SessionID).LastActivityAt; got != env.clock.Now().UnixMilli() {
		t.Fatalf("expected lastActivityAt to move to the current time, got %d", got)
	}
	if ttl := env.mr.TTL(env.engine.store.Keys().Session(pair.SessionID)); ttl != env.engine.config.JWT.RefreshTTL {
		t.Fatalf("expected TTL reset to refresh TTL, got %s", ttl)
	}
}

func TestRefreshInactivityCeiling(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.seedUser(t, "idle@x.com", true)
	pair := env.signin(t, "idle@x.com")

	env.clock.Advance(8 * 24 * time.Hour)
	_, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("expected ErrSessionInactive, got %v", err)
	}
	assertGone(t, err)

	if _, err := env.engine.Lookup(ctx, pair.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session to be deleted, got %v", err)
	}
	if count, _ := env.engine.ActiveSessionCount(ctx, rec.ID); count != 0 {
		t.Fatalf("expected idle session to be untracked, got %d", count)
	}
}

func TestRefreshTokenErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedUser(t, "tok@x.com", true)
	pair := env.signin(t, "tok@x.com")

	if _, err := env.engine.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("expected ErrTokenTypeMismatch, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, "not.a.token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("expected ErrTokenTypeMismatch, got %v", err)
	}
}

func TestRotateReplayIsGone(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.seedUser(t, "rot@x.com", true)
	pair := env.signin(t, "rot@x.com")

	rotated, err := env.engine.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if rotated.SessionID == pair.SessionID || rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must mint a new session id and refresh token")
	}

	_, err = env.engine.Rotate(ctx, pair.RefreshToken)
	assertGone(t, err)

	if _, err := env.engine.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("the rotated token must keep working: %v", err)
	}
	ids, err := env.engine.store.UserSessionIDs(ctx, rec.ID)
	if err != nil || len(ids) != 1 || ids[0] != rotated.SessionID {
		t.Fatalf("expected only the rotated id in the user set, got %v (%v)", ids, err)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricRotateReplay]; got != 1 {
		t.Fatalf("expected one replay, got %d", got)
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seedUser(t, "rot-race@x.com", true)
	pair := env.signin(t, "rot-race@x.com")

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Rotate(ctx, pair.RefreshToken)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrGone) {
				t.Errorf("losers must see Gone, got %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one rotation, got %d", wins)
	}
}

func TestLogoutOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	owner := env.seedUser(t, "owner@x.com", true)
	other := env.seedUser(t, "other@x.com", true)
	pair := env.signin(t, "owner@x.com")

	err := env.engine.Logout(ctx, other.ID, pair.SessionID)
	if !errors.Is(err, ErrSessionOwnerMismatch) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if _, err := env.engine.Lookup(ctx, pair.SessionID); err != nil {
		t.Fatalf("session must stay resolvable after a foreign logout: %v", err)
	}

	if err := env.engine.Logout(ctx, owner.ID, pair.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.Lookup(ctx, pair.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
	if err := env.engine.Logout(ctx, owner.ID, pair.SessionID); err != nil {
		t.Fatalf("repeated logout must be a no-op, got %v", err)
	}
}

func TestLogoutRejectsOTPSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sid, err := env.engine.Signup(ctx, SignupInput{Email: "otp@x.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	msg := env.notes.next(t)

	if err := env.engine.Logout(ctx, msg.UserID, sid); !errors.Is(err, ErrWrongFlow) {
		t.Fatalf("expected ErrWrongFlow, got %v", err)
	}
	if _, err := env.engine.LookupIdentifier(ctx, session.KindSignin, "otp@x.com"); !errors.Is(err, ErrWrongFlow) {
		t.Fatalf("expected ErrWrongFlow for signin identifier lookup, got %v", err)
	}
}

func TestLogoutAccessTokenAndStrictAccess(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Session.StrictAccess = true })
	ctx := context.Background()
	env.seedUser(t, "strict@x.com", true)
	pair := env.signin(t, "strict@x.com")

	if _, err := env.engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if err := env.engine.LogoutAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("LogoutAccessToken failed: %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, pair.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("strict access must reject a revoked session, got %v", err)
	}
}

func TestValidateAccessWithoutStrictIgnoresStore(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.seedUser(t, "lax@x.com", true)
	pair := env.signin(t, "lax@x.com")

	if _, err := env.engine.LogoutAll(ctx, rec.ID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("non-strict validation should only check the token, got %v", err)
	}
}

func TestSigninStorageFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "down@x.com", true)

	env.mr.Close()
	_, err := env.engine.Signin(context.Background(), "down@x.com", testPassword)
	if !errors.Is(err, ErrSessionStoreFailure) || !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected a storage failure, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRateLimitFailOpen]; got == 0 {
		t.Fatal("expected the rate limiter to fail open")
	}
}

func TestSigninUpgradesWeakHash(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.seedUser(t, "rehash@x.com", true)

	stronger, err := password.NewBcrypt(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	env.engine.hasher = stronger

	env.signin(t, "rehash@x.com")
	env.signin(t, "rehash@x.com")

	updated, err := env.dir.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if cost, err := bcrypt.Cost([]byte(updated.PasswordHash)); err != nil || cost != bcrypt.MinCost+1 {
		t.Fatalf("expected stored hash at cost %d, got %d (%v)", bcrypt.MinCost+1, cost, err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordRehash]; got != 1 {
		t.Fatalf("expected exactly one rehash, got %d", got)
	}
}

func TestSigninWrongPasswordKeepsHash(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.seedUser(t, "keep@x.com", true)

	stronger, err := password.NewBcrypt(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	env.engine.hasher = stronger

	if _, err := env.engine.Signin(context.Background(), "keep@x.com", "not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	updated, _ := env.dir.FindByID(context.Background(), rec.ID)
	if updated.PasswordHash != rec.PasswordHash {
		t.Fatal("a failed signin must not rewrite the stored hash")
	}
}
