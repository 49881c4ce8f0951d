package repository

import (
	"context"

	"github.com/nkiryanov/posauth/internal/models"
)

type CreateAccountParams struct {
	Email        string
	PasswordHash string
	Role         models.Role
	Name         string
	Phone        string
}

// Account repository interface
// Every method is a single statement against one row, so it's atomic on its own
type AccountRepo interface {
	// Create account
	// If account with the same email (case-insensitive) exists has to return apperrors.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)

	// Get account by it's id or email
	// If account not found must return apperrors.ErrAccountNotFound
	GetAccountByID(ctx context.Context, id int64) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)

	// Start session: overwrite refresh token hash of an active account
	// If account not found or deactivated must return apperrors.ErrAccountNotFound
	StartSession(ctx context.Context, id int64, hash string) error

	// Overwrite refresh token hash unconditionally. nil clears the session
	// If account not found must return apperrors.ErrAccountNotFound
	SetRefreshHash(ctx context.Context, id int64, hash *string) error

	// Replace refresh token hash only if account is active and current value equals expected
	// If it's not (rotated concurrently, cleared by logout, deactivated or account gone) must return apperrors.ErrRefreshHashMismatch
	SwapRefreshHash(ctx context.Context, id int64, expected string, next string) error

	// Set account active flag and return the updated account
	// Deactivation clears refresh token hash in the same write
	// If account not found must return apperrors.ErrAccountNotFound
	SetActive(ctx context.Context, id int64, active bool) (models.Account, error)
}
