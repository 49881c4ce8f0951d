package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/posauth/internal/handlers/middleware"
	"github.com/nkiryanov/posauth/internal/logger"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/service/auth"
)

const healthTimeout = 500 * time.Millisecond

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	Auth     authService
	Accounts accountService

	AccessGuard  auth.Guard
	RefreshGuard auth.Guard

	// Database ping for /healthz
	Health func(ctx context.Context) error

	// Optional. /metrics and request duration are skipped when nil
	Metrics metricsExporter

	Logger logger.Logger
}

func NewRouter(c RouterConfig) http.Handler {
	withAccess := middleware.Authenticate(c.AccessGuard, c.Logger)
	withRefresh := middleware.Authenticate(c.RefreshGuard, c.Logger)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /register", handleRegister(c.Auth, c.Logger))
	apiauth.Handle("POST /login", handleLogin(c.Auth, c.Logger))
	apiauth.Handle("POST /refresh", withRefresh(handleRefresh(c.Auth, c.Logger)))
	apiauth.Handle("POST /logout", withAccess(handleLogout(c.Auth, c.Logger)))
	apiauth.Handle("GET /me", withAccess(handleMe()))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))

	root.Handle("GET /api/accounts/{id}", chain(
		handleGetAccount(c.Accounts, c.Logger),
		withAccess,
		middleware.RequireRoles(models.RoleAdmin, models.RoleManager),
	))
	root.Handle("PATCH /api/accounts/{id}/active", chain(
		handleSetAccountActive(c.Accounts, c.Logger),
		withAccess,
		middleware.RequireRoles(models.RoleAdmin),
	))

	root.Handle("GET /healthz", handleHealth(c.Health))

	mds := []func(http.Handler) http.Handler{middleware.LoggerMiddleware(c.Logger)}
	if c.Metrics != nil {
		root.Handle("GET /metrics", c.Metrics.Handler())
		mds = append(mds, middleware.MetricsMiddleware(c.Metrics))
	}

	return chain(root, mds...)
}

func handleHealth(health func(ctx context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if health != nil {
			if err := health(ctx); err != nil {
				http.Error(w, "unhealthy: db", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

type authService interface {
	// Register account
	// Has to return apperrors.ErrAccountAlreadyExists if email is taken
	Register(ctx context.Context, p auth.RegisterParams) (models.PublicAccount, error)

	// Has to return apperrors.ErrInvalidCredentials if email or password is wrong
	ValidateCredentials(ctx context.Context, email string, password string) (models.PublicAccount, error)

	// Start new session for validated account
	Login(ctx context.Context, account models.PublicAccount) (auth.LoginResult, error)

	// Rotate session
	// Has to return apperrors.ErrAccessDenied if presented token is not the current one
	Refresh(ctx context.Context, accountID int64, presented string) (models.TokenPair, error)

	Logout(ctx context.Context, accountID int64) error
}

type accountService interface {
	Get(ctx context.Context, id int64) (models.PublicAccount, error)
	SetActive(ctx context.Context, id int64, active bool) (models.PublicAccount, error)
}

type metricsExporter interface {
	Handler() http.Handler
	ObserveHTTP(method string, status int, d time.Duration)
}
