package postgres

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetbase/leetbase/internal/apperrors"
	"github.com/leetbase/leetbase/internal/models"
	"github.com/leetbase/leetbase/internal/repository"
	"github.com/leetbase/leetbase/internal/testutil"
)

func Test_AccountRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	createParams := repository.CreateAccountParams{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hashed-password",
	}

	withTx := func(t *testing.T, fn func(repo *AccountRepo)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(&AccountRepo{DB: tx})
		})
	}

	t.Run("CreateAccount", func(t *testing.T) {
		t.Run("new account ok", func(t *testing.T) {
			withTx(t, func(repo *AccountRepo) {
				account, err := repo.CreateAccount(t.Context(), createParams)

				require.NoError(t, err)
				assert.Equal(t, "alice", account.Username)
				assert.Equal(t, "alice@example.com", account.Email)
				assert.Equal(t, models.RoleUser, account.Role, "role should default to USER")
				assert.False(t, account.EmailVerified, "account should start unverified")
				assert.Nil(t, account.RefreshFingerprint, "no session on creation")
				assert.NotZero(t, account.ID)
				assert.NotZero(t, account.CreatedAt)
			})
		})

		t.Run("explicit role kept", func(t *testing.T) {
			withTx(t, func(repo *AccountRepo) {
				params := createParams
				params.Role = models.RoleAdmin

				account, err := repo.CreateAccount(t.Context(), params)

				require.NoError(t, err)
				assert.Equal(t, models.RoleAdmin, account.Role)
			})
		})

		t.Run("verification fingerprint stored", func(t *testing.T) {
			withTx(t, func(repo *AccountRepo) {
				fingerprint := "verify-fingerprint"
				params := createParams
				params.EmailVerifyFingerprint = &fingerprint

				account, err := repo.CreateAccount(t.Context(), params)

				require.NoError(t, err)
				require.NotNil(t, account.EmailVerifyFingerprint)
				assert.Equal(t, fingerprint, *account.EmailVerifyFingerprint)
			})
		})

		t.Run("duplicate username fails", func(t *testing.T) {
			withTx(t, func(repo *AccountRepo) {
				_, err := repo.CreateAccount(t.Context(), createParams)
				require.NoError(t, err)

				params := createParams
				params.Email = "other@example.com"
				_, err = repo.CreateAccount(t.Context(), params)

				require.ErrorIs(t, err, apperrors.ErrAccountExists)
			})
		})

		t.Run("duplicate email fails", func(t *testing.T) {
			withTx(t, func(repo *AccountRepo) {
				_, err := repo.CreateAccount(t.Context(), createParams)
				require.NoError(t, err)

				params := createParams
				params.Username = "bob"
				_, err = repo.CreateAccount(t.Context(), params)

				require.ErrorIs(t, err, apperrors.ErrAccountExists)
			})
		})
	})

	t.Run("Get", func(t *testing.T) {
		withTx(t, func(repo *AccountRepo) {
			created, err := repo.CreateAccount(t.Context(), createParams)
			require.NoError(t, err)

			tests := []struct {
				name string
				get  func() (models.Account, error)
			}{
				{name: "by id", get: func() (models.Account, error) { return repo.GetByID(t.Context(), created.ID) }},
				{name: "by username", get: func() (models.Account, error) { return repo.GetByUsername(t.Context(), "alice") }},
				{name: "by email", get: func() (models.Account, error) { return repo.GetByEmail(t.Context(), "alice@example.com") }},
				{name: "by login with username", get: func() (models.Account, error) { return repo.GetByLogin(t.Context(), "alice") }},
				{name: "by login with email", get: func() (models.Account, error) { return repo.GetByLogin(t.Context(), "alice@example.com") }},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					account, err := tt.get()
					require.NoError(t, err)
					assert.Equal(t, created.ID, account.ID)
				})
			}

			t.Run("not found", func(t *testing.T) {
				_, err := repo.GetByLogin(t.Context(), "nobody")
				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})

		t.Run("username match beats email match", func(t *testing.T) {
			withTx(t, func(repo *AccountRepo) {
				first, err := repo.CreateAccount(t.Context(), repository.CreateAccountParams{
					Username:     "shared@example.com",
					Email:        "bob@example.com",
					PasswordHash: "hashed-password",
				})
				require.NoError(t, err)

				_, err = repo.CreateAccount(t.Context(), repository.CreateAccountParams{
					Username:     "carol",
					Email:        "shared@example.com",
					PasswordHash: "hashed-password",
				})
				require.NoError(t, err)

				account, err := repo.GetByLogin(t.Context(), "shared@example.com")
				require.NoError(t, err)
				assert.Equal(t, first.ID, account.ID, "a login hitting both columns must resolve to the username owner")
			})
		})
	})

	t.Run("refresh fingerprint lifecycle", func(t *testing.T) {
		withTx(t, func(repo *AccountRepo) {
			account, err := repo.CreateAccount(t.Context(), createParams)
			require.NoError(t, err)
			now := time.Now().Truncate(time.Second)

			// Login stores the fingerprint
			err = repo.SetRefreshFingerprint(t.Context(), account.ID, "fp-one", now)
			require.NoError(t, err)

			got, err := repo.GetByID(t.Context(), account.ID)
			require.NoError(t, err)
			require.NotNil(t, got.RefreshFingerprint)
			assert.Equal(t, "fp-one", *got.RefreshFingerprint)
			require.NotNil(t, got.RefreshIssuedAt)
			assert.WithinDuration(t, now, *got.RefreshIssuedAt, time.Second)

			// Rotation replaces it only while the old value still matches
			err = repo.RotateRefreshFingerprint(t.Context(), account.ID, "fp-one", "fp-two", now)
			require.NoError(t, err)

			err = repo.RotateRefreshFingerprint(t.Context(), account.ID, "fp-one", "fp-three", now)
			require.ErrorIs(t, err, apperrors.ErrTokenRevoked, "stale fingerprint must lose")

			got, err = repo.GetByID(t.Context(), account.ID)
			require.NoError(t, err)
			require.NotNil(t, got.RefreshFingerprint)
			assert.Equal(t, "fp-two", *got.RefreshFingerprint, "loser must not overwrite the winner")

			// Logout clears, and clearing twice is fine
			require.NoError(t, repo.ClearRefreshFingerprint(t.Context(), account.ID))
			require.NoError(t, repo.ClearRefreshFingerprint(t.Context(), account.ID))

			got, err = repo.GetByID(t.Context(), account.ID)
			require.NoError(t, err)
			assert.Nil(t, got.RefreshFingerprint)
			assert.Nil(t, got.RefreshIssuedAt)

			err = repo.RotateRefreshFingerprint(t.Context(), account.ID, "fp-two", "fp-four", now)
			require.ErrorIs(t, err, apperrors.ErrTokenRevoked, "no session means revoked")
		})
	})

	t.Run("conditional clear", func(t *testing.T) {
		withTx(t, func(repo *AccountRepo) {
			account, err := repo.CreateAccount(t.Context(), createParams)
			require.NoError(t, err)
			now := time.Now().Truncate(time.Second)

			require.NoError(t, repo.SetRefreshFingerprint(t.Context(), account.ID, "fp-current", now))

			// A stale fingerprint must not touch the live session
			require.NoError(t, repo.ClearRefreshFingerprintIf(t.Context(), account.ID, "fp-stale"))

			got, err := repo.GetByID(t.Context(), account.ID)
			require.NoError(t, err)
			require.NotNil(t, got.RefreshFingerprint)
			assert.Equal(t, "fp-current", *got.RefreshFingerprint)

			// The matching fingerprint clears the session
			require.NoError(t, repo.ClearRefreshFingerprintIf(t.Context(), account.ID, "fp-current"))

			got, err = repo.GetByID(t.Context(), account.ID)
			require.NoError(t, err)
			assert.Nil(t, got.RefreshFingerprint)
			assert.Nil(t, got.RefreshIssuedAt)
		})
	})

	t.Run("email verification fingerprint", func(t *testing.T) {
		withTx(t, func(repo *AccountRepo) {
			account, err := repo.CreateAccount(t.Context(), createParams)
			require.NoError(t, err)

			err = repo.SetEmailVerifyFingerprint(t.Context(), account.ID, "verify-fp")
			require.NoError(t, err)

			t.Run("wrong token fails and flips nothing", func(t *testing.T) {
				err := repo.ConsumeEmailVerifyFingerprint(t.Context(), account.ID, "wrong-fp")
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid)

				got, err := repo.GetByID(t.Context(), account.ID)
				require.NoError(t, err)
				assert.False(t, got.EmailVerified)
			})

			t.Run("consume ok exactly once", func(t *testing.T) {
				err := repo.ConsumeEmailVerifyFingerprint(t.Context(), account.ID, "verify-fp")
				require.NoError(t, err)

				got, err := repo.GetByID(t.Context(), account.ID)
				require.NoError(t, err)
				assert.True(t, got.EmailVerified, "flag set in the same operation")
				assert.Nil(t, got.EmailVerifyFingerprint, "token cleared in the same operation")

				err = repo.ConsumeEmailVerifyFingerprint(t.Context(), account.ID, "verify-fp")
				require.ErrorIs(t, err, apperrors.ErrTokenInvalid, "spent token must not work twice")
			})
		})
	})

	// The rotation race runs on the pool (not in a tx) so updates really
	// compete: exactly one concurrent rotation may win
	t.Run("concurrent rotation single winner", func(t *testing.T) {
		repo := &AccountRepo{DB: pg.Pool}

		account, err := repo.CreateAccount(t.Context(), repository.CreateAccountParams{
			Username:     "race",
			Email:        "race@example.com",
			PasswordHash: "hashed-password",
		})
		require.NoError(t, err)

		now := time.Now().Truncate(time.Second)
		require.NoError(t, repo.SetRefreshFingerprint(t.Context(), account.ID, "fp-old", now))

		const attempts = 10
		var wg sync.WaitGroup
		errs := make([]error, attempts)

		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = repo.RotateRefreshFingerprint(t.Context(), account.ID, "fp-old", fmt.Sprintf("fp-new-%d", i), now)
			}()
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			switch {
			case err == nil:
				winners++
			default:
				require.ErrorIs(t, err, apperrors.ErrTokenRevoked, "losers must observe revocation")
			}
		}
		require.Equal(t, 1, winners, "exactly one rotation may succeed")
	})
}
