package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leetbase/leetbase/internal/apperrors"
	"github.com/leetbase/leetbase/internal/models"
	"github.com/leetbase/leetbase/internal/repository"
)

type AccountRepo struct {
	DB DBTX
}

const accountColumns = `id, username, email, password_hash, role, is_email_verified,
	refresh_fingerprint, refresh_issued_at, email_verify_fingerprint, created_at, updated_at`

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (username, email, password_hash, role, email_verify_fingerprint)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + accountColumns

func (r *AccountRepo) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	role := arg.Role
	if role == "" {
		role = models.RoleUser
	}

	rows, _ := r.DB.Query(ctx, createAccount, arg.Username, arg.Email, arg.PasswordHash, role, arg.EmailVerifyFingerprint)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return account, apperrors.ErrAccountExists
		}
		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetByID
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, id)
	return collectAccount(rows)
}

const getAccountByUsername = `-- name: GetByUsername
SELECT ` + accountColumns + `
FROM accounts
WHERE username = $1
`

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByUsername, username)
	return collectAccount(rows)
}

const getAccountByEmail = `-- name: GetByEmail
SELECT ` + accountColumns + `
FROM accounts
WHERE email = $1
`

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByEmail, email)
	return collectAccount(rows)
}

const getAccountByLogin = `-- name: GetByLogin
SELECT ` + accountColumns + `
FROM accounts
WHERE username = $1 OR email = $1
ORDER BY (username = $1) DESC
LIMIT 1
`

// If one account's username equals another account's email the username
// match wins, so the ordering above pins which row comes back
func (r *AccountRepo) GetByLogin(ctx context.Context, login string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByLogin, login)
	return collectAccount(rows)
}

const setRefreshFingerprint = `-- name: SetRefreshFingerprint
UPDATE accounts
SET refresh_fingerprint = $2, refresh_issued_at = $3, updated_at = now()
WHERE id = $1
`

func (r *AccountRepo) SetRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string, issuedAt time.Time) error {
	tag, err := r.DB.Exec(ctx, setRefreshFingerprint, id, fingerprint, issuedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

const rotateRefreshFingerprint = `-- name: RotateRefreshFingerprint
UPDATE accounts
SET refresh_fingerprint = $3, refresh_issued_at = $4, updated_at = now()
WHERE id = $1 AND refresh_fingerprint = $2
`

// Rotate refresh fingerprint in a single conditional update
// If the stored fingerprint changed since it was read (logout, or another
// rotation won the race) zero rows match and the caller gets ErrTokenRevoked
func (r *AccountRepo) RotateRefreshFingerprint(ctx context.Context, id uuid.UUID, oldFingerprint string, newFingerprint string, issuedAt time.Time) error {
	tag, err := r.DB.Exec(ctx, rotateRefreshFingerprint, id, oldFingerprint, newFingerprint, issuedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTokenRevoked
	}
	return nil
}

const clearRefreshFingerprint = `-- name: ClearRefreshFingerprint
UPDATE accounts
SET refresh_fingerprint = NULL, refresh_issued_at = NULL, updated_at = now()
WHERE id = $1
`

func (r *AccountRepo) ClearRefreshFingerprint(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, clearRefreshFingerprint, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

const clearRefreshFingerprintIf = `-- name: ClearRefreshFingerprintIf
UPDATE accounts
SET refresh_fingerprint = NULL, refresh_issued_at = NULL, updated_at = now()
WHERE id = $1 AND refresh_fingerprint = $2
`

// Clear the session only while the stored fingerprint matches. Zero rows
// means a newer session took the slot in the meantime; it must survive
func (r *AccountRepo) ClearRefreshFingerprintIf(ctx context.Context, id uuid.UUID, fingerprint string) error {
	_, err := r.DB.Exec(ctx, clearRefreshFingerprintIf, id, fingerprint)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const setEmailVerifyFingerprint = `-- name: SetEmailVerifyFingerprint
UPDATE accounts
SET email_verify_fingerprint = $2, updated_at = now()
WHERE id = $1
`

func (r *AccountRepo) SetEmailVerifyFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error {
	tag, err := r.DB.Exec(ctx, setEmailVerifyFingerprint, id, fingerprint)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

const consumeEmailVerifyFingerprint = `-- name: ConsumeEmailVerifyFingerprint
UPDATE accounts
SET email_verify_fingerprint = NULL, is_email_verified = TRUE, updated_at = now()
WHERE id = $1 AND email_verify_fingerprint = $2
`

// Consume the verification token and flip is_email_verified in one statement
// so there is no window where the token is spent but the flag is not set.
// Comparing sha256 fingerprints keeps the equality check timing-safe
func (r *AccountRepo) ConsumeEmailVerifyFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error {
	tag, err := r.DB.Exec(ctx, consumeEmailVerifyFingerprint, id, fingerprint)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTokenInvalid
	}
	return nil
}

func collectAccount(rows pgx.Rows) (models.Account, error) {
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.EmailVerified,
		&a.RefreshFingerprint, &a.RefreshIssuedAt, &a.EmailVerifyFingerprint,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}
