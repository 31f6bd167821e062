package authsession

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/authsession/session"
)

func TestIntrospectionSessionCountAndListAfterSigninLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.seedUser(t, "intro@x.com", true)
	pair := env.signin(t, "intro@x.com")

	count, err := env.engine.ActiveSessionCount(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ActiveSessionCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active session, got %d", count)
	}

	list, err := env.engine.ActiveSessions(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != pair.SessionID {
		t.Fatalf("expected [%s], got %+v", pair.SessionID, list)
	}
	if list[0].Kind != session.KindSignin || list[0].Identity.UserID != rec.ID {
		t.Fatalf("unexpected session info: %+v", list[0])
	}
	if list[0].LastActivityAt.IsZero() {
		t.Fatal("expected lastActivityAt on a signin session")
	}

	if err := env.engine.Logout(ctx, rec.ID, pair.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	countAfter, err := env.engine.ActiveSessionCount(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ActiveSessionCount after logout failed: %v", err)
	}
	if countAfter != 0 {
		t.Fatalf("expected 0 active sessions after logout, got %d", countAfter)
	}
}

func TestIntrospectionSkipsExpiredRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.seedUser(t, "stale@x.com", true)
	keep := env.signin(t, "stale@x.com")
	lost := env.signin(t, "stale@x.com")

	env.mr.Del(env.engine.store.Keys().Session(lost.SessionID))

	list, err := env.engine.ActiveSessions(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != keep.SessionID {
		t.Fatalf("expected only %s, got %+v", keep.SessionID, list)
	}
	if count, _ := env.engine.ActiveSessionCount(ctx, rec.ID); count != 2 {
		t.Fatalf("count reports tracked ids, expected 2, got %d", count)
	}
}

func TestIntrospectionLookupOTPSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sid, err := env.engine.Signup(ctx, SignupInput{Email: "look@x.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	env.notes.next(t)

	info, err := env.engine.Lookup(ctx, sid)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if info.Kind != session.KindSignupVerify || info.OTPExpiresAt.IsZero() {
		t.Fatalf("unexpected info: %+v", info)
	}

	byIdent, err := env.engine.LookupIdentifier(ctx, session.KindSignupVerify, "LOOK@x.com")
	if err != nil {
		t.Fatalf("LookupIdentifier failed: %v", err)
	}
	if byIdent.ID != sid {
		t.Fatalf("expected %s through the index, got %s", sid, byIdent.ID)
	}

	if _, err := env.engine.LookupIdentifier(ctx, session.KindResetPassword, "look@x.com"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected no reset session, got %v", err)
	}
	if _, err := env.engine.Lookup(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestIntrospectionRejectsEmptyUser(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.ActiveSessions(context.Background(), ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	if _, err := env.engine.ActiveSessionCount(context.Background(), ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}
