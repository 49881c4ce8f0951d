package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/audit"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/repository/memory"
	"github.com/nkiryanov/posauth/internal/service/auth/tokenmanager"
)

// Publisher that remembers events
type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *auditRecorder) Publish(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *auditRecorder) Types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]audit.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

// Repo that fails on session writes
type brokenSessionRepo struct {
	*memory.AccountRepo
}

func (r brokenSessionRepo) StartSession(context.Context, int64, string) error {
	return errors.New("connection reset by peer")
}

func (r brokenSessionRepo) SetRefreshHash(context.Context, int64, *string) error {
	return errors.New("connection reset by peer")
}

func newTokenManager(t *testing.T) *tokenmanager.TokenManager {
	m, err := tokenmanager.New(tokenmanager.Config{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"})
	require.NoError(t, err)
	return m
}

func newTestService(t *testing.T, opts ...Option) (*AuthService, *memory.AccountRepo) {
	repo := memory.NewAccountRepo()
	opts = append([]Option{WithHasher(BcryptHasher{Cost: bcrypt.MinCost})}, opts...)

	s, err := NewService(Config{}, newTokenManager(t), repo, opts...)
	require.NoError(t, err, "auth service should be created without errors")
	return s, repo
}

var bob = RegisterParams{
	Email:    "bob@x.com",
	Password: "StrongEnoughPassword",
	Role:     "cashier",
	Name:     "Bob",
}

// Register bob and log him in
func loginBob(t *testing.T, s *AuthService) LoginResult {
	t.Helper()

	_, err := s.Register(t.Context(), bob)
	require.NoError(t, err)
	account, err := s.ValidateCredentials(t.Context(), bob.Email, bob.Password)
	require.NoError(t, err)
	result, err := s.Login(t.Context(), account)
	require.NoError(t, err)
	return result
}

func Test_NewService(t *testing.T) {
	_, err := NewService(Config{}, nil, memory.NewAccountRepo())
	require.Error(t, err)

	_, err = NewService(Config{}, newTokenManager(t), nil)
	require.Error(t, err)
}

func Test_Register(t *testing.T) {
	t.Run("register ok", func(t *testing.T) {
		s, repo := newTestService(t)

		account, err := s.Register(t.Context(), RegisterParams{
			Email:    "  Bob@X.com ",
			Password: "StrongEnoughPassword",
			Role:     "stock_keeper",
			Name:     "Bob",
			Phone:    "+100",
		})

		require.NoError(t, err)
		require.Equal(t, "bob@x.com", account.Email, "email must be normalized")
		require.Equal(t, models.RoleStockKeeper, account.Role, "role must be canonical")
		require.Equal(t, "+100", account.Phone)
		require.True(t, account.IsActive)

		stored, err := repo.GetAccountByID(t.Context(), account.ID)
		require.NoError(t, err)
		require.Nil(t, stored.RefreshTokenHash, "registration must not start a session")
	})

	t.Run("password is never stored in plaintext", func(t *testing.T) {
		s, repo := newTestService(t)

		for _, password := range []string{"a", "StrongEnoughPassword", "пароль-с-юникодом", strings.Repeat("x", 100)} {
			account, err := s.Register(t.Context(), RegisterParams{
				Email:    password + "@x.com",
				Password: password,
				Role:     "ADMIN",
			})
			require.NoError(t, err)

			stored, err := repo.GetAccountByID(t.Context(), account.ID)
			require.NoError(t, err)
			require.NotEqual(t, password, stored.PasswordHash)
		}
	})

	t.Run("same email twice", func(t *testing.T) {
		s, _ := newTestService(t)
		_, err := s.Register(t.Context(), bob)
		require.NoError(t, err)

		dup := bob
		dup.Email = "BOB@x.com"
		_, err = s.Register(t.Context(), dup)

		require.ErrorIs(t, err, apperrors.ErrAccountAlreadyExists)
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []struct {
			name   string
			params RegisterParams
			err    error
		}{
			{"no email", RegisterParams{Password: "pass", Role: "ADMIN"}, apperrors.ErrValidation},
			{"no password", RegisterParams{Email: "bob@x.com", Role: "ADMIN"}, apperrors.ErrValidation},
			{"unknown role", RegisterParams{Email: "bob@x.com", Password: "pass", Role: "owner"}, apperrors.ErrInvalidRole},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s, _ := newTestService(t)

				_, err := s.Register(t.Context(), tt.params)

				require.ErrorIs(t, err, tt.err)
			})
		}
	})
}

func Test_ValidateCredentials(t *testing.T) {
	s, repo := newTestService(t)
	registered, err := s.Register(t.Context(), bob)
	require.NoError(t, err)

	t.Run("ok", func(t *testing.T) {
		account, err := s.ValidateCredentials(t.Context(), "BOB@x.com", bob.Password)

		require.NoError(t, err)
		require.Equal(t, registered, account)

		stored, err := repo.GetAccountByID(t.Context(), account.ID)
		require.NoError(t, err)
		require.Nil(t, stored.RefreshTokenHash, "credentials check must not start a session")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := s.ValidateCredentials(t.Context(), bob.Email, "wrong")

		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := s.ValidateCredentials(t.Context(), "alice@x.com", bob.Password)

		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("deactivated account", func(t *testing.T) {
		s, repo := newTestService(t)
		account, err := s.Register(t.Context(), bob)
		require.NoError(t, err)
		_, err = repo.SetActive(t.Context(), account.ID, false)
		require.NoError(t, err)

		_, err = s.ValidateCredentials(t.Context(), bob.Email, bob.Password)

		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
}

func Test_Login(t *testing.T) {
	t.Run("stores refresh fingerprint not the token", func(t *testing.T) {
		s, repo := newTestService(t)

		result := loginBob(t, s)

		require.NotEmpty(t, result.Pair.Access.Value)
		require.NotEmpty(t, result.Pair.Refresh.Value)
		require.Equal(t, bob.Email, result.Account.Email)

		stored, err := repo.GetAccountByID(t.Context(), result.Account.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.RefreshTokenHash)
		require.NotEqual(t, result.Pair.Refresh.Value, *stored.RefreshTokenHash)
		require.NoError(t, s.hasher.Compare(*stored.RefreshTokenHash, result.Pair.Refresh.Value))
	})

	t.Run("new login supersedes previous session", func(t *testing.T) {
		s, _ := newTestService(t)
		first := loginBob(t, s)

		second, err := s.Login(t.Context(), first.Account)
		require.NoError(t, err)

		_, err = s.Refresh(t.Context(), first.Account.ID, first.Pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrAccessDenied)
		_, err = s.Refresh(t.Context(), first.Account.ID, second.Pair.Refresh.Value)
		require.NoError(t, err)
	})

	t.Run("deactivated between validate and login", func(t *testing.T) {
		s, repo := newTestService(t)
		_, err := s.Register(t.Context(), bob)
		require.NoError(t, err)
		account, err := s.ValidateCredentials(t.Context(), bob.Email, bob.Password)
		require.NoError(t, err)
		_, err = repo.SetActive(t.Context(), account.ID, false)
		require.NoError(t, err)

		_, err = s.Login(t.Context(), account)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

		_, err = repo.SetActive(t.Context(), account.ID, true)
		require.NoError(t, err)
		stored, err := repo.GetAccountByID(t.Context(), account.ID)
		require.NoError(t, err)
		require.Nil(t, stored.RefreshTokenHash, "no session may be started for deactivated account")
	})

	t.Run("reactivation does not revive session", func(t *testing.T) {
		s, repo := newTestService(t)
		login := loginBob(t, s)
		_, err := repo.SetActive(t.Context(), login.Account.ID, false)
		require.NoError(t, err)
		_, err = repo.SetActive(t.Context(), login.Account.ID, true)
		require.NoError(t, err)

		_, err = s.Refresh(t.Context(), login.Account.ID, login.Pair.Refresh.Value)

		require.ErrorIs(t, err, apperrors.ErrAccessDenied)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		repo := brokenSessionRepo{memory.NewAccountRepo()}
		s, err := NewService(Config{}, newTokenManager(t), repo, WithHasher(BcryptHasher{Cost: bcrypt.MinCost}))
		require.NoError(t, err)
		account, err := s.Register(t.Context(), bob)
		require.NoError(t, err)

		_, err = s.Login(t.Context(), account)

		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrAccessDenied)
	})
}

func Test_Refresh(t *testing.T) {
	t.Run("rotation invalidates predecessor", func(t *testing.T) {
		s, _ := newTestService(t)
		login := loginBob(t, s)

		rotated, err := s.Refresh(t.Context(), login.Account.ID, login.Pair.Refresh.Value)
		require.NoError(t, err)
		require.NotEqual(t, login.Pair.Refresh.Value, rotated.Refresh.Value)
		require.NotEqual(t, login.Pair.Access.Value, rotated.Access.Value)

		_, err = s.Refresh(t.Context(), login.Account.ID, login.Pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrAccessDenied, "replayed token must be denied")

		_, err = s.Refresh(t.Context(), login.Account.ID, rotated.Refresh.Value)
		require.NoError(t, err, "rotated token is the current one")
	})

	t.Run("logout then refresh", func(t *testing.T) {
		s, _ := newTestService(t)
		login := loginBob(t, s)
		require.NoError(t, s.Logout(t.Context(), login.Account.ID))

		_, err := s.Refresh(t.Context(), login.Account.ID, login.Pair.Refresh.Value)

		require.ErrorIs(t, err, apperrors.ErrAccessDenied)
	})

	t.Run("never logged in", func(t *testing.T) {
		s, _ := newTestService(t)
		account, err := s.Register(t.Context(), bob)
		require.NoError(t, err)

		_, err = s.Refresh(t.Context(), account.ID, "whatever")

		require.ErrorIs(t, err, apperrors.ErrAccessDenied)
	})

	t.Run("unknown account", func(t *testing.T) {
		s, _ := newTestService(t)

		_, err := s.Refresh(t.Context(), 42, "whatever")

		require.ErrorIs(t, err, apperrors.ErrAccessDenied)
	})

	t.Run("concurrent refresh with same token only one wins", func(t *testing.T) {
		s, _ := newTestService(t)
		login := loginBob(t, s)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Refresh(context.Background(), login.Account.ID, login.Pair.Refresh.Value)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrAccessDenied)
		}
		require.Equal(t, 1, succeeded, "exactly one rotation must succeed")
	})
}

func Test_Logout(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		s, repo := newTestService(t)
		login := loginBob(t, s)

		for range 2 {
			require.NoError(t, s.Logout(t.Context(), login.Account.ID))

			stored, err := repo.GetAccountByID(t.Context(), login.Account.ID)
			require.NoError(t, err)
			require.Nil(t, stored.RefreshTokenHash)
		}
	})

	t.Run("unknown account is not an error", func(t *testing.T) {
		s, _ := newTestService(t)

		require.NoError(t, s.Logout(t.Context(), 42))
	})
}

func Test_Audit(t *testing.T) {
	t.Run("events are published", func(t *testing.T) {
		rec := &auditRecorder{}
		s, _ := newTestService(t, WithAudit(rec))

		login := loginBob(t, s)
		_, err := s.Refresh(t.Context(), login.Account.ID, "forged")
		require.ErrorIs(t, err, apperrors.ErrAccessDenied)
		require.NoError(t, s.Logout(t.Context(), login.Account.ID))

		require.Equal(t, []audit.EventType{
			audit.EventRegister,
			audit.EventLogin,
			audit.EventRefresh,
			audit.EventLogout,
		}, rec.Types())
		require.Equal(t, audit.OutcomeFailure, rec.events[2].Outcome)
	})

	t.Run("publisher failure never fails operation", func(t *testing.T) {
		rec := &auditRecorder{err: errors.New("broker is down")}
		s, _ := newTestService(t, WithAudit(rec))

		login := loginBob(t, s)
		_, err := s.Refresh(t.Context(), login.Account.ID, login.Pair.Refresh.Value)

		require.NoError(t, err)
	})
}
