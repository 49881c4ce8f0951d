package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/repository"
)

type AccountRepo struct {
	DB DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{DB: db}
}

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (email, password_hash, role, name, phone)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, email, password_hash, role, name, phone, refresh_token_hash, is_active
`

func (r *AccountRepo) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, arg.Email, arg.PasswordHash, string(arg.Role), arg.Name, arg.Phone)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, apperrors.ErrAccountAlreadyExists
		}

		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT id, created_at, email, password_hash, role, name, phone, refresh_token_hash, is_active
FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccountByID(ctx context.Context, id int64) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, id)
	return collectAccount(rows)
}

const getAccountByEmail = `-- name: GetAccountByEmail
SELECT id, created_at, email, password_hash, role, name, phone, refresh_token_hash, is_active
FROM accounts
WHERE lower(email) = lower($1)
`

func (r *AccountRepo) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByEmail, email)
	return collectAccount(rows)
}

const startSession = `-- name: StartSession
UPDATE accounts
SET refresh_token_hash = $2
WHERE id = $1 AND is_active
`

func (r *AccountRepo) StartSession(ctx context.Context, id int64, hash string) error {
	tag, err := r.DB.Exec(ctx, startSession, id, hash)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrAccountNotFound
	default:
		return nil
	}
}

const setRefreshHash = `-- name: SetRefreshHash
UPDATE accounts
SET refresh_token_hash = $2
WHERE id = $1
`

func (r *AccountRepo) SetRefreshHash(ctx context.Context, id int64, hash *string) error {
	tag, err := r.DB.Exec(ctx, setRefreshHash, id, hash)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrAccountNotFound
	default:
		return nil
	}
}

const swapRefreshHash = `-- name: SwapRefreshHash
UPDATE accounts
SET refresh_token_hash = $3
WHERE id = $1 AND refresh_token_hash = $2 AND is_active
`

// Compare-and-swap on a single row
// Concurrent swaps with the same expected value: only the first one affects the row
func (r *AccountRepo) SwapRefreshHash(ctx context.Context, id int64, expected string, next string) error {
	tag, err := r.DB.Exec(ctx, swapRefreshHash, id, expected, next)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrRefreshHashMismatch
	default:
		return nil
	}
}

const setActive = `-- name: SetActive
UPDATE accounts
SET is_active = $2,
    refresh_token_hash = CASE WHEN $2 THEN refresh_token_hash END
WHERE id = $1
RETURNING id, created_at, email, password_hash, role, name, phone, refresh_token_hash, is_active
`

func (r *AccountRepo) SetActive(ctx context.Context, id int64, active bool) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, setActive, id, active)
	return collectAccount(rows)
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
	var role string
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Email, &a.PasswordHash, &role, &a.Name, &a.Phone, &a.RefreshTokenHash, &a.IsActive)
	a.Role = models.Role(role)
	return a, err
}
