package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/audit"
	"github.com/nkiryanov/posauth/internal/logger"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/repository"
	"github.com/nkiryanov/posauth/internal/service/auth/tokenmanager"
)

// Interface to create or compare hashes of passwords and refresh tokens
type Hasher interface {
	// Generate Hash from raw value
	Hash(raw string) (string, error)

	// Compare known hash and user provided raw value
	// Must return ErrHashMismatch if they don't match; any other error is a hasher failure
	Compare(hash string, raw string) error
}

type TokenManager interface {
	IssuePair(accountID int64, role models.Role) (models.TokenPair, error)
	Verify(value string, kind tokenmanager.Kind) (models.Claims, error)
}

// Counter of auth operations, usually prometheus backed
type Recorder interface {
	AuthEvent(operation string, outcome string)
}

type Config struct {
	// bcrypt cost for passwords and refresh token fingerprints
	// bcrypt.DefaultCost if not set
	BcryptCost int
}

type Option func(*AuthService)

func WithHasher(h Hasher) Option {
	return func(s *AuthService) { s.hasher = h }
}

func WithLogger(l logger.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

func WithAudit(p audit.Publisher) Option {
	return func(s *AuthService) { s.audit = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *AuthService) { s.recorder = r }
}

// Session service
// The only component that writes refresh token hashes
type AuthService struct {
	tokens   TokenManager
	accounts repository.AccountRepo

	hasher   Hasher
	logger   logger.Logger
	audit    audit.Publisher
	recorder Recorder
	now      func() time.Time
}

func NewService(cfg Config, tokens TokenManager, accounts repository.AccountRepo, opts ...Option) (*AuthService, error) {
	if tokens == nil || accounts == nil {
		return nil, errors.New("token manager and account repo must not be nil")
	}

	s := &AuthService{
		tokens:   tokens,
		accounts: accounts,
		hasher:   BcryptHasher{Cost: cfg.BcryptCost},
		logger:   logger.NewNoOpLogger(),
		audit:    audit.Discard,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

type RegisterParams struct {
	Email    string
	Password string
	Role     string
	Name     string
	Phone    string
}

type LoginResult struct {
	Pair    models.TokenPair
	Account models.PublicAccount
}

// Register creates account with hashed password. No session is started
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (models.PublicAccount, error) {
	email := models.NormalizeEmail(p.Email)
	if email == "" || p.Password == "" {
		return models.PublicAccount{}, fmt.Errorf("%w: email and password are required", apperrors.ErrValidation)
	}

	role, err := models.ParseRole(p.Role)
	if err != nil {
		return models.PublicAccount{}, err
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return models.PublicAccount{}, fmt.Errorf("can't hash password: %w", err)
	}

	account, err := s.accounts.CreateAccount(ctx, repository.CreateAccountParams{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Name:         p.Name,
		Phone:        p.Phone,
	})
	if err != nil {
		s.record(ctx, audit.Event{Type: audit.EventRegister, Email: email, Outcome: audit.OutcomeFailure})
		return models.PublicAccount{}, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "role", account.Role)
	s.record(ctx, audit.Event{Type: audit.EventRegister, AccountID: account.ID, Email: email, Outcome: audit.OutcomeSuccess})

	return account.Public(), nil
}

// ValidateCredentials checks email and password without any side effect
// Unknown email, wrong password or deactivated account all are apperrors.ErrInvalidCredentials
func (s *AuthService) ValidateCredentials(ctx context.Context, email string, password string) (models.PublicAccount, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, models.NormalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return models.PublicAccount{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.PublicAccount{}, err
	}

	err = s.hasher.Compare(account.PasswordHash, password)
	switch {
	case errors.Is(err, ErrHashMismatch):
		return models.PublicAccount{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.PublicAccount{}, fmt.Errorf("can't compare password: %w", err)
	}

	if !account.IsActive {
		return models.PublicAccount{}, apperrors.ErrInvalidCredentials
	}

	return account.Public(), nil
}

// Login starts new session for already validated account
// Previous refresh token (if any) stops working
// Account deactivated or deleted after validation is apperrors.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, account models.PublicAccount) (LoginResult, error) {
	pair, hash, err := s.issue(account.ID, account.Role)
	if err != nil {
		return LoginResult{}, err
	}

	err = s.accounts.StartSession(ctx, account.ID, hash)
	if err != nil {
		s.record(ctx, audit.Event{Type: audit.EventLogin, AccountID: account.ID, Email: account.Email, Outcome: audit.OutcomeFailure})
	}
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return LoginResult{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return LoginResult{}, fmt.Errorf("can't persist refresh token: %w", err)
	}

	s.logger.Info("account logged in", "account_id", account.ID)
	s.record(ctx, audit.Event{Type: audit.EventLogin, AccountID: account.ID, Email: account.Email, Outcome: audit.OutcomeSuccess})

	return LoginResult{Pair: pair, Account: account}, nil
}

// Refresh rotates session: presented token has to be the current one
// Anything else (no session, superseded or forged token, lost race) is apperrors.ErrAccessDenied
func (s *AuthService) Refresh(ctx context.Context, accountID int64, presented string) (models.TokenPair, error) {
	deny := func(reason string) (models.TokenPair, error) {
		s.logger.Info("refresh denied", "account_id", accountID, "reason", reason)
		s.record(ctx, audit.Event{Type: audit.EventRefresh, AccountID: accountID, Outcome: audit.OutcomeFailure})
		return models.TokenPair{}, apperrors.ErrAccessDenied
	}

	account, err := s.accounts.GetAccountByID(ctx, accountID)
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return deny("account not found")
	case err != nil:
		return models.TokenPair{}, err
	}

	if account.RefreshTokenHash == nil {
		return deny("no active session")
	}
	stored := *account.RefreshTokenHash

	err = s.hasher.Compare(stored, presented)
	switch {
	case errors.Is(err, ErrHashMismatch):
		return deny("token is not current")
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("can't compare refresh token: %w", err)
	}

	pair, hash, err := s.issue(account.ID, account.Role)
	if err != nil {
		return models.TokenPair{}, err
	}

	err = s.accounts.SwapRefreshHash(ctx, account.ID, stored, hash)
	switch {
	case errors.Is(err, apperrors.ErrRefreshHashMismatch):
		return deny("rotated concurrently")
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("can't persist refresh token: %w", err)
	}

	s.logger.Debug("session rotated", "account_id", account.ID)
	s.record(ctx, audit.Event{Type: audit.EventRefresh, AccountID: account.ID, Email: account.Email, Outcome: audit.OutcomeSuccess})

	return pair, nil
}

// Logout drops session. Idempotent, unknown account is not an error either
func (s *AuthService) Logout(ctx context.Context, accountID int64) error {
	err := s.accounts.SetRefreshHash(ctx, accountID, nil)
	switch {
	case err == nil, errors.Is(err, apperrors.ErrAccountNotFound):
	default:
		return fmt.Errorf("can't clear refresh token: %w", err)
	}

	s.logger.Info("account logged out", "account_id", accountID)
	s.record(ctx, audit.Event{Type: audit.EventLogout, AccountID: accountID, Outcome: audit.OutcomeSuccess})

	return nil
}

// Issue pair and fingerprint its refresh token
func (s *AuthService) issue(accountID int64, role models.Role) (models.TokenPair, string, error) {
	pair, err := s.tokens.IssuePair(accountID, role)
	if err != nil {
		return models.TokenPair{}, "", fmt.Errorf("token could not be issued: %w", err)
	}

	hash, err := s.hasher.Hash(pair.Refresh.Value)
	if err != nil {
		return models.TokenPair{}, "", fmt.Errorf("can't hash refresh token: %w", err)
	}

	return pair, hash, nil
}

// Audit and metrics never fail the operation
func (s *AuthService) record(ctx context.Context, e audit.Event) {
	e.At = s.now().UTC()
	s.recorder.AuthEvent(string(e.Type), string(e.Outcome))

	if err := s.audit.Publish(ctx, e); err != nil {
		s.logger.Warn("audit event not published", "type", e.Type, "account_id", e.AccountID, "error", err.Error())
	}
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}
