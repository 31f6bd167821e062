package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/password"
)

const loadtestPassword = "loadtest-password-123"

// account is one seeded user and the refresh token of its live session.
type account struct {
	email   string
	mu      sync.Mutex
	refresh string
	access  string
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of accounts to seed and sign in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate, refresh, rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		configPath  = flag.String("config", "", "optional config file; AUTHSESSION_* env vars also apply")
		strict      = flag.Bool("strict", false, "check the session store on every access validation")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		logger.Error().Msg("users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	cfg.RateLimit.Enabled = false
	cfg.Session.StrictAccess = *strict
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, cleanup, err := connect(*redisAddr, logger)
	if err != nil {
		logger.Error().Err(err).Msg("redis unavailable")
		os.Exit(1)
	}
	defer cleanup()

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		logger.Error().Err(err).Msg("hasher")
		os.Exit(1)
	}
	dir := directory.NewMemory()

	engine, err := authsession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(dir).
		WithPasswordHasher(hasher).
		WithLogger(logger.Level(zerolog.WarnLevel)).
		Build()
	if err != nil {
		logger.Error().Err(err).Msg("build engine")
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	accounts, err := seed(ctx, dir, hasher, *users)
	if err != nil {
		logger.Error().Err(err).Msg("seed failed")
		os.Exit(1)
	}
	logger.Info().Int("users", len(accounts)).Msg("accounts seeded")

	signin := runPhase(len(accounts), *concurrency, func(_ *rand.Rand, i int) error {
		acc := accounts[i]
		pair, err := engine.Signin(ctx, acc.email, loadtestPassword)
		if err != nil {
			return err
		}
		acc.mu.Lock()
		acc.refresh, acc.access = pair.RefreshToken, pair.AccessToken
		acc.mu.Unlock()
		return nil
	})

	validate := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		acc := accounts[r.Intn(len(accounts))]
		acc.mu.Lock()
		token := acc.access
		acc.mu.Unlock()
		_, err := engine.ValidateAccess(ctx, token)
		return err
	})
	refresh := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		acc := accounts[r.Intn(len(accounts))]
		acc.mu.Lock()
		token := acc.refresh
		acc.mu.Unlock()
		_, err := engine.Refresh(ctx, token)
		return err
	})
	rotate := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		acc := accounts[r.Intn(len(accounts))]
		acc.mu.Lock()
		defer acc.mu.Unlock()
		pair, err := engine.Rotate(ctx, acc.refresh)
		if err != nil {
			return err
		}
		acc.refresh, acc.access = pair.RefreshToken, pair.AccessToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("signin", signin)
	printStats("validate", validate)
	printStats("refresh", refresh)
	printStats("rotate", rotate)
	snap := engine.MetricsSnapshot()
	fmt.Printf("replays=%d inactive=%d\n", snap.Counters[authsession.MetricRotateReplay], snap.Counters[authsession.MetricSessionInactive])
}

func loadConfig(path string) (authsession.Config, error) {
	if path != "" || os.Getenv(authsession.EnvPrefix+"_OTP_SECRET") != "" {
		return authsession.LoadConfig(path)
	}
	cfg := authsession.DefaultConfig()
	cfg.JWT.AccessKey = "loadtest-access-key-0123456789abcdef"
	cfg.JWT.RefreshKey = "loadtest-refresh-key-0123456789abcdef"
	cfg.OTP.Secret = "loadtest-otp-secret-0123"
	return cfg, cfg.Validate()
}

func connect(addr string, logger zerolog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info().Str("addr", addr).Msg("using redis")
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info().Str("addr", mr.Addr()).Msg("using miniredis")
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seed(ctx context.Context, dir *directory.Memory, hasher password.Hasher, n int) ([]*account, error) {
	hash, err := hasher.Hash(loadtestPassword)
	if err != nil {
		return nil, err
	}
	out := make([]*account, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user%d@loadtest.example", i)
		rec, err := dir.CreateUser(ctx, directory.CreateInput{Email: email, PasswordHash: hash, Active: true})
		if err != nil {
			return nil, err
		}
		if _, err := dir.UpdateUserByID(ctx, rec.ID, directory.Patch{EmailVerified: directory.Bool(true)}); err != nil {
			return nil, err
		}
		out[i] = &account{email: email}
	}
	return out, nil
}

// runPhase calls op ops times across concurrency workers. The index passed
// to op is the operation number.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-8s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
