// Package account is the account management surface: lookup and (de)activation
package account

import (
	"context"
	"time"

	"github.com/nkiryanov/posauth/internal/audit"
	"github.com/nkiryanov/posauth/internal/logger"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/repository"
)

type AccountService struct {
	accounts repository.AccountRepo
	audit    audit.Publisher
	logger   logger.Logger
	now      func() time.Time
}

func NewService(accounts repository.AccountRepo, publisher audit.Publisher, l logger.Logger) *AccountService {
	if publisher == nil {
		publisher = audit.Discard
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AccountService{
		accounts: accounts,
		audit:    publisher,
		logger:   l,
		now:      time.Now,
	}
}

// Get returns public projection of the account
// apperrors.ErrAccountNotFound if there is no such account
func (s *AccountService) Get(ctx context.Context, id int64) (models.PublicAccount, error) {
	account, err := s.accounts.GetAccountByID(ctx, id)
	if err != nil {
		return models.PublicAccount{}, err
	}
	return account.Public(), nil
}

// SetActive flips liveness flag. Guards pick it up on the very next request
// Deactivation drops the session in the same write, so reactivation never revives an old refresh token
func (s *AccountService) SetActive(ctx context.Context, id int64, active bool) (models.PublicAccount, error) {
	account, err := s.accounts.SetActive(ctx, id, active)
	if err != nil {
		return models.PublicAccount{}, err
	}

	eventType := audit.EventActivate
	if !active {
		eventType = audit.EventDeactivate
	}

	s.logger.Info("account active flag changed", "account_id", id, "active", active)
	e := audit.Event{Type: eventType, AccountID: id, Email: account.Email, Outcome: audit.OutcomeSuccess, At: s.now().UTC()}
	if err := s.audit.Publish(ctx, e); err != nil {
		s.logger.Warn("audit event not published", "type", e.Type, "account_id", id, "error", err.Error())
	}

	return account.Public(), nil
}
