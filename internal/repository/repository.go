package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leetbase/leetbase/internal/models"
)

type CreateAccountParams struct {
	Username     string
	Email        string
	PasswordHash string

	// Role defaults to models.RoleUser if empty
	Role string

	// Fingerprint of the email verification token issued on registration
	EmailVerifyFingerprint *string
}

// Account repository interface
type AccountRepo interface {
	// Create account
	// Has to return apperrors.ErrAccountExists if username or email is taken
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)

	// Get account by id, username, email or login (username or email)
	// If account not found must return apperrors.ErrAccountNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetByUsername(ctx context.Context, username string) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)
	GetByLogin(ctx context.Context, login string) (models.Account, error)

	// Replace the active refresh fingerprint unconditionally (login)
	SetRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string, issuedAt time.Time) error

	// Replace the fingerprint only if it still equals oldFingerprint.
	// Single conditional update: concurrent rotations with the same old
	// fingerprint produce exactly one winner, losers get
	// apperrors.ErrTokenRevoked
	RotateRefreshFingerprint(ctx context.Context, id uuid.UUID, oldFingerprint string, newFingerprint string, issuedAt time.Time) error

	// Drop the active session. Idempotent: clearing an absent fingerprint
	// is not an error
	ClearRefreshFingerprint(ctx context.Context, id uuid.UUID) error

	// Drop the session only while the fingerprint still equals the given
	// value. Zero rows is not an error: the session was already replaced
	// or cleared and must be left alone
	ClearRefreshFingerprintIf(ctx context.Context, id uuid.UUID, fingerprint string) error

	// Store the fingerprint of a fresh email verification token
	SetEmailVerifyFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error

	// Consume the verification token and mark the email verified in one
	// conditional update. If the fingerprint does not match (wrong token or
	// already consumed) must return apperrors.ErrTokenInvalid
	ConsumeEmailVerifyFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error
}

type Storage interface {
	Account() AccountRepo
}
