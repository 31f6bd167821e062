package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWT algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// TokenType distinguishes the two bearer credential classes.
type TokenType string

const (
	TypeAccess  TokenType = "ACCESS"
	TypeRefresh TokenType = "REFRESH"
)

var (
	// ErrTokenExpired means the caller must re-authenticate or refresh.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers undecodable tokens, bad signatures and
	// missing claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenTypeMismatch means a valid-looking token of the other class
	// was presented, e.g. an access token where a refresh token is expected.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// KeyPair holds the key material for one token class. For HS256 Private is
// the shared secret and Public is ignored. For Ed25519 either raw keys or
// PEM are accepted.
type KeyPair struct {
	Private []byte
	Public  []byte
}

// Config configures an Issuer. Access and refresh tokens must be signed
// with different keys.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	AccessKey     KeyPair
	RefreshKey    KeyPair
	Issuer        string
	Leeway        time.Duration
}

// Claims is the payload of both token classes.
type Claims struct {
	SessionID string    `json:"sid"`
	Type      TokenType `json:"typ"`
	gjwt.RegisteredClaims
}

// Payload is what the caller asks to be signed.
type Payload struct {
	Subject   string
	SessionID string
	Type      TokenType
}

type signingKeys struct {
	sign   interface{}
	verify interface{}
}

// Issuer mints and verifies access and refresh tokens.
type Issuer struct {
	config  Config
	method  gjwt.SigningMethod
	access  signingKeys
	refresh signingKeys
}

// NewIssuer validates cfg and pre-parses the key material.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	iss := &Issuer{config: cfg}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		iss.method = gjwt.SigningMethodHS256
		if len(cfg.AccessKey.Private) < 32 || len(cfg.RefreshKey.Private) < 32 {
			return nil, errors.New("hs256 secrets must be at least 32 bytes")
		}
		if bytes.Equal(cfg.AccessKey.Private, cfg.RefreshKey.Private) {
			return nil, errors.New("access and refresh keys must differ")
		}
		iss.access = signingKeys{sign: cfg.AccessKey.Private, verify: cfg.AccessKey.Private}
		iss.refresh = signingKeys{sign: cfg.RefreshKey.Private, verify: cfg.RefreshKey.Private}
	case MethodEd25519:
		iss.method = gjwt.SigningMethodEdDSA
		if iss.access, err = edKeys(cfg.AccessKey); err != nil {
			return nil, fmt.Errorf("access key: %w", err)
		}
		if iss.refresh, err = edKeys(cfg.RefreshKey); err != nil {
			return nil, fmt.Errorf("refresh key: %w", err)
		}
		if bytes.Equal(iss.access.verify.(ed25519.PublicKey), iss.refresh.verify.(ed25519.PublicKey)) {
			return nil, errors.New("access and refresh keys must differ")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return iss, nil
}

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.config.RefreshTTL }

// Issue signs payload with the key of its type. Apart from iat/exp and the
// random jti the output is deterministic in its inputs.
func (i *Issuer) Issue(p Payload, ttl time.Duration) (string, error) {
	if p.Subject == "" || p.SessionID == "" {
		return "", errors.New("token payload requires subject and session id")
	}
	keys, err := i.keysFor(p.Type)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		SessionID: p.SessionID,
		Type:      p.Type,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return gjwt.NewWithClaims(i.method, claims).SignedString(keys.sign)
}

// IssueAccess signs an access token with the configured access TTL.
func (i *Issuer) IssueAccess(subject, sessionID string) (string, error) {
	return i.Issue(Payload{Subject: subject, SessionID: sessionID, Type: TypeAccess}, i.config.AccessTTL)
}

// IssueRefresh signs a refresh token with the configured refresh TTL.
func (i *Issuer) IssueRefresh(subject, sessionID string) (string, error) {
	return i.Issue(Payload{Subject: subject, SessionID: sessionID, Type: TypeRefresh}, i.config.RefreshTTL)
}

// IssuePair returns a fresh access and refresh token for one session.
func (i *Issuer) IssuePair(subject, sessionID string) (access, refresh string, err error) {
	access, err = i.IssueAccess(subject, sessionID)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.IssueRefresh(subject, sessionID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Verify checks token against the key of expected. The declared type is
// read first so that presenting the other class reports ErrTokenTypeMismatch
// instead of a signature failure.
func (i *Issuer) Verify(token string, expected TokenType) (*Claims, error) {
	keys, err := i.keysFor(expected)
	if err != nil {
		return nil, err
	}

	var peek Claims
	if _, _, err := gjwt.NewParser().ParseUnverified(token, &peek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if peek.Type != expected {
		return nil, ErrTokenTypeMismatch
	}

	options := []gjwt.ParserOption{
		gjwt.WithValidMethods([]string{i.method.Alg()}),
		gjwt.WithExpirationRequired(),
	}
	if i.config.Leeway > 0 {
		options = append(options, gjwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, gjwt.WithIssuer(i.config.Issuer))
	}

	parsed, err := gjwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *gjwt.Token) (interface{}, error) {
		if t.Method.Alg() != i.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return keys.verify, nil
	})
	if err != nil {
		if errors.Is(err, gjwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Type != expected {
		return nil, ErrTokenTypeMismatch
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing subject or session id", ErrTokenMalformed)
	}
	return claims, nil
}

func (i *Issuer) keysFor(t TokenType) (signingKeys, error) {
	switch t {
	case TypeAccess:
		return i.access, nil
	case TypeRefresh:
		return i.refresh, nil
	}
	return signingKeys{}, fmt.Errorf("unknown token type %q", t)
}

func edKeys(kp KeyPair) (signingKeys, error) {
	priv, err := parseEdPrivateKey(kp.Private)
	if err != nil {
		return signingKeys{}, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	if len(kp.Public) > 0 {
		pub, err = parseEdPublicKey(kp.Public)
		if err != nil {
			return signingKeys{}, err
		}
	}
	return signingKeys{sign: priv, verify: pub}, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := gjwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := gjwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
