package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/service/auth/tokenmanager"
)

const maxRefreshBodySize = 1 << 16

// Guard authenticates request and returns claims of the live account
// Authentication failures are apperrors.ErrUnauthorized, anything else is a server error
type Guard func(r *http.Request) (models.Claims, error)

type Verifier interface {
	Verify(value string, kind tokenmanager.Kind) (models.Claims, error)
}

type AccountGetter interface {
	GetAccountByID(ctx context.Context, id int64) (models.Account, error)
}

// AccessGuard reads bearer token from Authorization header
func AccessGuard(v Verifier, accounts AccountGetter) Guard {
	return func(r *http.Request) (models.Claims, error) {
		token, err := bearerToken(r)
		if err != nil {
			return models.Claims{}, err
		}

		claims, err := v.Verify(token, tokenmanager.KindAccess)
		if err != nil {
			return models.Claims{}, err
		}

		return liveClaims(r.Context(), accounts, claims)
	}
}

// RefreshGuard reads refresh token from JSON body field 'refresh_token'
// It does not compare token against stored hash, session service does
func RefreshGuard(v Verifier, accounts AccountGetter) Guard {
	return func(r *http.Request) (models.Claims, error) {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		err := json.NewDecoder(io.LimitReader(r.Body, maxRefreshBodySize)).Decode(&body)
		if err != nil || body.RefreshToken == "" {
			return models.Claims{}, fmt.Errorf("%w: refresh token not found in body", apperrors.ErrUnauthorized)
		}

		claims, err := v.Verify(body.RefreshToken, tokenmanager.KindRefresh)
		if err != nil {
			return models.Claims{}, err
		}

		claims, err = liveClaims(r.Context(), accounts, claims)
		if err != nil {
			return models.Claims{}, err
		}

		claims.RefreshToken = body.RefreshToken
		return claims, nil
	}
}

// RequireRole returns apperrors.ErrForbidden if claims role is not one of allowed
func RequireRole(claims models.Claims, allowed ...models.Role) error {
	if slices.Contains(allowed, claims.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %s is not allowed", apperrors.ErrForbidden, claims.Role)
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: bearer token not found", apperrors.ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}

// Account has to exist and be active on every request, whatever the token says
func liveClaims(ctx context.Context, accounts AccountGetter, claims models.Claims) (models.Claims, error) {
	account, err := accounts.GetAccountByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return models.Claims{}, fmt.Errorf("%w: account not found", apperrors.ErrUnauthorized)
	case err != nil:
		return models.Claims{}, err
	}

	if !account.IsActive {
		return models.Claims{}, fmt.Errorf("%w: account is deactivated", apperrors.ErrUnauthorized)
	}

	claims.Email = account.Email
	claims.Name = account.Name
	return claims, nil
}
