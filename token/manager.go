package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrTokenInvalid is returned for malformed, expired, or mis-signed
	// continuation tokens.
	ErrTokenInvalid = errors.New("invalid continuation token")
)

// Config configures the continuation token manager.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// Secret is the HMAC key for hs256, or the ed25519 seed/private key.
	Secret []byte
	// PublicKey is required for ed25519 verification when Secret is absent.
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
}

// Claims is the payload of a plan continuation token. It pins the token
// to one plan fingerprint so a stale token cannot resume against a
// rebuilt plan.
type Claims struct {
	FlowSlug    string `json:"fls"`
	Fingerprint string `json:"fpr"`
	StageIndex  int    `json:"sti"`
	UserID      string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies plan continuation tokens. The transport
// layer hands the token to the client between stage submissions; parsing
// it back recovers which plan and stage the request resumes.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
	case MethodEd25519:
		if len(cfg.Secret) != ed25519.SeedSize && len(cfg.Secret) != ed25519.PrivateKeySize {
			return nil, errors.New("ed25519 requires a 32-byte seed or 64-byte private key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a continuation token for stageIndex of the identified plan.
func (m *Manager) Issue(flowSlug, fingerprint, userID string, stageIndex int) (string, error) {
	now := time.Now()
	claims := Claims{
		FlowSlug:    flowSlug,
		Fingerprint: fingerprint,
		StageIndex:  stageIndex,
		UserID:      userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}

	switch m.config.SigningMethod {
	case MethodHS256:
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := tok.SignedString(m.config.Secret)
		if err != nil {
			return "", fmt.Errorf("sign continuation token: %w", err)
		}
		return signed, nil
	case MethodEd25519:
		tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
		signed, err := tok.SignedString(m.privateKey())
		if err != nil {
			return "", fmt.Errorf("sign continuation token: %w", err)
		}
		return signed, nil
	default:
		return "", errors.New("unsupported signing method")
	}
}

// Parse verifies a continuation token and returns its claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	switch m.config.SigningMethod {
	case MethodHS256:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	case MethodEd25519:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, m.verifyKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if claims.Fingerprint == "" || claims.FlowSlug == "" || claims.StageIndex < 0 {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (m *Manager) verifyKey(*jwt.Token) (any, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.Secret, nil
	case MethodEd25519:
		if len(m.config.PublicKey) == ed25519.PublicKeySize {
			return ed25519.PublicKey(m.config.PublicKey), nil
		}
		return m.privateKey().Public(), nil
	default:
		return nil, errors.New("unsupported signing method")
	}
}

func (m *Manager) privateKey() ed25519.PrivateKey {
	if len(m.config.Secret) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(m.config.Secret)
	}
	return ed25519.PrivateKey(m.config.Secret)
}
