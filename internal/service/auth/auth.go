package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leetbase/leetbase/internal/apperrors"
	"github.com/leetbase/leetbase/internal/models"
	"github.com/leetbase/leetbase/internal/repository"
	"github.com/leetbase/leetbase/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "_refresh"
)

type Config struct {
	// Hasher used during registration and login
	// BcryptHasher is used if not set
	Hasher PasswordHasher

	// Transport details for issued tokens
	// Defaults: Authorization header, Bearer scheme, '_refresh' cookie
	AccessHeaderName  string
	AccessAuthScheme  string
	RefreshCookieName string

	// Production switches cookie security attributes
	// (secure, samesite none, partitioned)
	Production bool
}

// Auth service: the session lifecycle controller
// Orchestrates the account repo and token manager, enforcing single active
// session per account, refresh rotation and single-use email verification
type AuthService struct {
	token  *tokenmanager.TokenManager
	hasher PasswordHasher

	accountRepo repository.AccountRepo

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	production        bool

	// Hash compared against when the account does not exist, so unknown
	// username and wrong password cost the same
	dummyHash string
}

func NewService(cfg Config, token *tokenmanager.TokenManager, accountRepo repository.AccountRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)

	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("error while preparing hasher. Err: %w", err)
	}

	return &AuthService{
		token:             token,
		hasher:            hasher,
		accountRepo:       accountRepo,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		production:        cfg.Production,
		dummyHash:         dummyHash,
	}, nil
}

// Register creates an unverified account and issues its email verification
// token. The raw token is returned for out-of-band delivery (mailer is an
// external collaborator), only the fingerprint is stored
func (s *AuthService) Register(ctx context.Context, username string, email string, password string) (models.Account, string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Account{}, "", fmt.Errorf("can't use this as password, error=%w", err)
	}

	verifyToken, verifyFingerprint, err := s.token.NewVerificationToken()
	if err != nil {
		return models.Account{}, "", fmt.Errorf("error while issuing verification token. Err: %w", err)
	}

	account, err := s.accountRepo.CreateAccount(ctx, repository.CreateAccountParams{
		Username:               username,
		Email:                  email,
		PasswordHash:           hash,
		EmailVerifyFingerprint: &verifyFingerprint,
	})
	if err != nil {
		return models.Account{}, "", err
	}

	return account, verifyToken, nil
}

// VerifyEmail consumes the verification token and flips the verified flag.
// Does not require a session. Reuse of a consumed token fails
func (s *AuthService) VerifyEmail(ctx context.Context, accountID uuid.UUID, rawToken string) error {
	err := s.accountRepo.ConsumeEmailVerifyFingerprint(ctx, accountID, tokenmanager.Fingerprint(rawToken))
	if err != nil {
		return fmt.Errorf("error while verifying email. Err: %w", err)
	}
	return nil
}

// ResendVerification replaces the outstanding verification token.
// Fails for already verified accounts
func (s *AuthService) ResendVerification(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account.EmailVerified {
		return "", fmt.Errorf("email verified already: %w", apperrors.ErrTokenInvalid)
	}

	verifyToken, verifyFingerprint, err := s.token.NewVerificationToken()
	if err != nil {
		return "", fmt.Errorf("error while issuing verification token. Err: %w", err)
	}

	err = s.accountRepo.SetEmailVerifyFingerprint(ctx, accountID, verifyFingerprint)
	if err != nil {
		return "", err
	}

	return verifyToken, nil
}

// Login checks credentials and starts a session, replacing any previous one.
// Verification state does not gate login: it gates content access elsewhere.
// Unknown login and wrong password are indistinguishable to the caller
func (s *AuthService) Login(ctx context.Context, login string, password string) (models.Account, models.TokenPair, error) {
	account, err := s.accountRepo.GetByLogin(ctx, login)
	if err != nil {
		// Burn a compare anyway so this path costs the same as a mismatch
		_ = s.hasher.Compare(s.dummyHash, password)
		return models.Account{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return models.Account{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.startSession(ctx, account)
	if err != nil {
		return models.Account{}, models.TokenPair{}, err
	}

	return account, pair, nil
}

// Refresh rotates the session: verifies the presented refresh token against
// the stored fingerprint and replaces it with a fresh one in a single
// conditional store write. A replayed token loses the race and gets revoked
func (s *AuthService) Refresh(ctx context.Context, accountID uuid.UUID, rawRefresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			return pair, apperrors.ErrTokenRevoked
		}
		return pair, err
	}

	oldFingerprint := tokenmanager.Fingerprint(rawRefresh)
	if account.RefreshFingerprint == nil || *account.RefreshFingerprint != oldFingerprint {
		return pair, apperrors.ErrTokenRevoked
	}

	now := time.Now().Truncate(time.Second)
	if account.RefreshIssuedAt == nil || s.token.RefreshExpired(*account.RefreshIssuedAt, now) {
		// The stale session is dead, but only this exact fingerprint may be
		// dropped: a login that landed since the read above owns the slot now
		_ = s.accountRepo.ClearRefreshFingerprintIf(ctx, accountID, oldFingerprint)
		return pair, apperrors.ErrTokenExpired
	}

	refresh, newFingerprint, err := s.token.NewRefreshToken()
	if err != nil {
		return pair, err
	}

	// The conditional update resolves concurrent refreshes: exactly one
	// caller replaces the fingerprint, the rest observe a changed value
	err = s.accountRepo.RotateRefreshFingerprint(ctx, accountID, oldFingerprint, newFingerprint, now)
	if err != nil {
		return pair, err
	}

	access, err := s.token.IssueAccess(account)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: s.token.RefreshExpiresAt(now)},
	}, nil
}

// Logout drops the active session. Outstanding access tokens stay valid
// until their own expiry: stateless tokens cannot be revoked early
func (s *AuthService) Logout(ctx context.Context, accountID uuid.UUID) error {
	return s.accountRepo.ClearRefreshFingerprint(ctx, accountID)
}

func (s *AuthService) startSession(ctx context.Context, account models.Account) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := s.token.IssueAccess(account)
	if err != nil {
		return pair, err
	}

	refresh, fingerprint, err := s.token.NewRefreshToken()
	if err != nil {
		return pair, err
	}

	now := time.Now().Truncate(time.Second)
	err = s.accountRepo.SetRefreshFingerprint(ctx, account.ID, fingerprint, now)
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh fingerprint. Err: %w", err)
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: s.token.RefreshExpiresAt(now)},
	}, nil
}
