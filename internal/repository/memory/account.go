// Package memory is an in-process AccountRepo used by unit tests and local runs without database.
// Each method holds the store lock for its whole body, which mirrors single-row atomicity of postgres.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/repository"
)

type AccountRepo struct {
	mu       sync.Mutex
	seq      int64
	accounts map[int64]models.Account
	byEmail  map[string]int64
}

func NewAccountRepo() *AccountRepo {
	return &AccountRepo{
		accounts: make(map[int64]models.Account),
		byEmail:  make(map[string]int64),
	}
}

func (r *AccountRepo) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.NormalizeEmail(arg.Email)
	if _, ok := r.byEmail[key]; ok {
		return models.Account{}, apperrors.ErrAccountAlreadyExists
	}

	r.seq++
	a := models.Account{
		ID:           r.seq,
		CreatedAt:    time.Now().UTC(),
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
		Role:         arg.Role,
		Name:         arg.Name,
		Phone:        arg.Phone,
		IsActive:     true,
	}
	r.accounts[a.ID] = a
	r.byEmail[key] = a.ID

	return copyAccount(a), nil
}

func (r *AccountRepo) GetAccountByID(ctx context.Context, id int64) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (r *AccountRepo) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	return copyAccount(r.accounts[id]), nil
}

func (r *AccountRepo) StartSession(ctx context.Context, id int64, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || !a.IsActive {
		return apperrors.ErrAccountNotFound
	}
	a.RefreshTokenHash = &hash
	r.accounts[id] = a
	return nil
}

func (r *AccountRepo) SetRefreshHash(ctx context.Context, id int64, hash *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return apperrors.ErrAccountNotFound
	}
	a.RefreshTokenHash = copyString(hash)
	r.accounts[id] = a
	return nil
}

func (r *AccountRepo) SwapRefreshHash(ctx context.Context, id int64, expected string, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || !a.IsActive || a.RefreshTokenHash == nil || *a.RefreshTokenHash != expected {
		return apperrors.ErrRefreshHashMismatch
	}
	a.RefreshTokenHash = &next
	r.accounts[id] = a
	return nil
}

func (r *AccountRepo) SetActive(ctx context.Context, id int64, active bool) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	a.IsActive = active
	if !active {
		a.RefreshTokenHash = nil
	}
	r.accounts[id] = a
	return copyAccount(a), nil
}

// Callers must not be able to mutate stored hash through returned pointer
func copyAccount(a models.Account) models.Account {
	a.RefreshTokenHash = copyString(a.RefreshTokenHash)
	return a
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
