package authsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/password"
	"github.com/MrEthical07/authsession/session"
)

const testPassword = "correct-horse-battery"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// captureNotifier records every OTP handed to it.
type captureNotifier struct {
	msgs chan OTPMessage
	fail error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{msgs: make(chan OTPMessage, 64)}
}

func (n *captureNotifier) SendOTP(_ context.Context, msg OTPMessage) error {
	n.msgs <- msg
	return n.fail
}

func (n *captureNotifier) next(t *testing.T) OTPMessage {
	t.Helper()
	select {
	case msg := <-n.msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected an otp to be delivered")
	}
	return OTPMessage{}
}

func (n *captureNotifier) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-n.msgs:
		t.Fatalf("expected no delivery, got one for session %s", msg.SessionID)
	case <-time.After(wait):
	}
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	dir    *directory.Memory
	notes  *captureNotifier
	clock  *testClock
	hasher password.Hasher
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, mutate)
}

// newTestEnvWith builds the engine on wrap(env.dir) when wrap is set, so a
// test can inject directory failures in front of the in-memory store.
func newTestEnvWith(t *testing.T, wrap func(*directory.Memory) directory.Directory, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := validTestConfig()
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	env := &testEnv{
		mr:     mr,
		rdb:    rdb,
		dir:    directory.NewMemory(),
		notes:  newCaptureNotifier(),
		clock:  newTestClock(),
		hasher: hasher,
	}

	var dir directory.Directory = env.dir
	if wrap != nil {
		dir = wrap(env.dir)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithNotifier(env.notes).
		WithPasswordHasher(hasher).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	engine.now = env.clock.Now
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

// seedUser creates a local account directly in the directory.
func (env *testEnv) seedUser(t *testing.T, email string, verified bool) *directory.UserRecord {
	t.Helper()

	hash, err := env.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	rec, err := env.dir.CreateUser(context.Background(), directory.CreateInput{
		Email:        email,
		PasswordHash: hash,
		Provider:     directory.ProviderLocal,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if verified {
		rec, err = env.dir.UpdateUserByID(context.Background(), rec.ID, directory.Patch{
			EmailVerified: directory.Bool(true),
		})
		if err != nil {
			t.Fatalf("UpdateUserByID failed: %v", err)
		}
	}
	return rec
}

func (env *testEnv) session(t *testing.T, id string) *session.Session {
	t.Helper()
	sess, err := env.engine.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected session %s to exist: %v", id, err)
	}
	return sess
}

func (env *testEnv) signin(t *testing.T, email string) *TokenPair {
	t.Helper()
	pair, err := env.engine.Signin(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("Signin failed: %v", err)
	}
	return pair
}

func assertGone(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, ErrGone) {
		t.Fatalf("expected a Gone error, got %v", err)
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(validTestConfig()).WithDirectory(directory.NewMemory()).Build(); err == nil {
		t.Fatal("expected missing redis to fail")
	}
	if _, err := New().WithConfig(validTestConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing directory to fail")
	}

	b := New().WithConfig(validTestConfig()).WithRedis(rdb).WithDirectory(directory.NewMemory())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildRejectsWeakKeys(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := validTestConfig()
	cfg.JWT.AccessKey = "short-access"
	cfg.JWT.RefreshKey = "short-refresh"
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithDirectory(directory.NewMemory()).Build(); err == nil {
		t.Fatal("expected short hs256 secrets to be rejected")
	}

	cfg = validTestConfig()
	cfg.OTP.Secret = "tiny"
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithDirectory(directory.NewMemory()).Build(); err == nil {
		t.Fatal("expected short otp secret to be rejected")
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var e Engine
	if _, err := e.Signup(context.Background(), SignupInput{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Signin(context.Background(), "a@x.com", "pw"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if h := e.Health(context.Background()); h.RedisAvailable {
		t.Fatal("zero engine must not report redis available")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	if h := env.engine.Health(context.Background()); !h.RedisAvailable {
		t.Fatal("expected redis to be available")
	}

	env.mr.Close()
	if h := env.engine.Health(context.Background()); h.RedisAvailable {
		t.Fatal("expected redis to be unavailable after close")
	}
}

func TestSecurityReportHasNoSecrets(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.engine.SecurityReport()
	if r.SigningAlgorithm != "hs256" || r.OTPLength != 6 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if !r.NotifierConfigured {
		t.Fatal("expected notifier to be reported")
	}
	if r.InactivityLimit != 7*24*time.Hour {
		t.Fatalf("expected 7 day inactivity limit, got %s", r.InactivityLimit)
	}
}

func TestFlowLoggingCarriesSessionFields(t *testing.T) {
	env := newTestEnv(t, nil)
	var buf syncBuffer
	env.engine.logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	ctx := context.Background()

	sid, err := env.engine.Signup(ctx, SignupInput{Email: "logs@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	msg := env.notes.next(t)
	if err := env.engine.VerifySignup(ctx, VerifyInput{ResumeInput: ResumeInput{SessionID: sid}, Code: msg.Code}); err != nil {
		t.Fatalf("VerifySignup failed: %v", err)
	}
	pair := env.signin(t, "logs@example.com")

	for _, want := range []string{
		`"message":"otp session created"`,
		`"message":"otp session consumed"`,
		`"message":"signin session created"`,
		`"session_id":"` + sid + `"`,
		`"session_id":"` + pair.SessionID + `"`,
		`"flow":"signin"`,
	} {
		if !buf.Contains(want) {
			t.Fatalf("expected log output to contain %s", want)
		}
	}
	if buf.Contains(`"`+msg.Code+`"`) || buf.Contains(testPassword) {
		t.Fatal("log output must not contain the otp code or the password")
	}
}
