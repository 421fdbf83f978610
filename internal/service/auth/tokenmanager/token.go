package tokenmanager

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/leetbase/leetbase/internal/apperrors"
	"github.com/leetbase/leetbase/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	refreshTokenBytesLen = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	AccountID uuid.UUID `json:"uid"`
	Role      string    `json:"role"`
}

// Identity carried by a valid access token. Stateless: no store lookup
// happens between parsing and returning it
type Identity struct {
	AccountID uuid.UUID
	Role      string
}

// Token manager with sensible defaults
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		key:        cfg.SecretKey,
		alg:        jwt.GetSigningMethod(cfg.Alg),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// IssueAccess signs a short-lived stateless token with account id and role
func (m *TokenManager) IssueAccess(account models.Account) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			AccountID: account.ID,
			Role:      account.Role,
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
// The jwt library checks the signature before any claim, so a tampered token
// always fails as invalid and never reveals whether it would have expired
func (m *TokenManager) ParseAccess(access string) (Identity, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)

	switch {
	case err == nil:
		return Identity{AccountID: claims.AccountID, Role: claims.Role}, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	default:
		return Identity{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
}

// NewRefreshToken generates an opaque random refresh token
// The raw value goes to the client only; the store keeps the fingerprint,
// so a store compromise cannot forge a session
func (m *TokenManager) NewRefreshToken() (raw string, fingerprint string, err error) {
	return newOpaqueToken()
}

// NewVerificationToken generates a single-use email verification token,
// same raw/fingerprint split as refresh tokens
func (m *TokenManager) NewVerificationToken() (raw string, fingerprint string, err error) {
	return newOpaqueToken()
}

// RefreshExpired reports whether a refresh token issued at issuedAt is past
// its lifetime. Opaque tokens carry no claims, age lives in the store
func (m *TokenManager) RefreshExpired(issuedAt time.Time, now time.Time) bool {
	return now.After(issuedAt.Add(m.refreshTTL))
}

// RefreshExpiresAt returns the expiry for a refresh token issued at issuedAt
func (m *TokenManager) RefreshExpiresAt(issuedAt time.Time) time.Time {
	return issuedAt.Add(m.refreshTTL)
}

// Fingerprint computes the one-way hash stored against the account
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newOpaqueToken() (raw string, fingerprint string, err error) {
	b := make([]byte, refreshTokenBytesLen)
	_, err = rand.Read(b)
	if err != nil {
		return "", "", fmt.Errorf("error while generating token. Err: %w", err)
	}

	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, Fingerprint(raw), nil
}
