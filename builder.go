package authsession

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authsession/directory"
	"github.com/MrEthical07/authsession/internal/identifier"
	"github.com/MrEthical07/authsession/internal/rate"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/password"
	"github.com/MrEthical07/authsession/session"
)

// Builder assembles an Engine. Configure it once during initialization;
// Build may be called only once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory directory.Directory
	notifier  Notifier
	hasher    password.Hasher
	auditSink AuditSink
	logger    zerolog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig sets the engine configuration; Build validates it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing sessions, the identifier index and
// rate limits. Standalone, cluster and sentinel clients all work.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the user store that holds accounts and password hashes.
func (b *Builder) WithDirectory(d directory.Directory) *Builder {
	b.directory = d
	return b
}

// WithNotifier sets the OTP delivery hook. Without one, codes are
// generated and stored but never sent.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithPasswordHasher replaces the default Argon2id hasher.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for operational messages. Defaults to a
// disabled logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled; call it after WithConfig.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	issuer, err := jwt.NewIssuer(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessKey: jwt.KeyPair{
			Private: []byte(cfg.JWT.AccessKey),
			Public:  optionalBytes(cfg.JWT.AccessPublicKey),
		},
		RefreshKey: jwt.KeyPair{
			Private: []byte(cfg.JWT.RefreshKey),
			Public:  optionalBytes(cfg.JWT.RefreshPublicKey),
		},
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		hasher = ph
	}

	logger := b.logger.With().Str("component", "authsession").Logger()

	engine := &Engine{
		config:    cfg,
		store:     session.NewStore(b.redis, cfg.Session.KeyPrefix),
		index:     session.NewIndex(b.redis, cfg.Session.KeyPrefix),
		limiter:   rate.New(b.redis, cfg.Session.KeyPrefix, logger),
		issuer:    issuer,
		directory: b.directory,
		hasher:    hasher,
		notifier:  b.notifier,
		idents:    identifier.New(cfg.Identifier.DefaultRegion),
		otpSecret: []byte(cfg.OTP.Secret),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
	}

	b.built = true

	return engine, nil
}

func optionalBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
