package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/handlers/render"
	"github.com/nkiryanov/posauth/internal/handlers/userctx"
	"github.com/nkiryanov/posauth/internal/logger"
	"github.com/nkiryanov/posauth/internal/models"
	"github.com/nkiryanov/posauth/internal/service/auth"
)

type tokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func handleRegister(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=128"`
		Role     string `json:"role" validate:"required,role"`
		Name     string `json:"name" validate:"max=100"`
		Phone    string `json:"phone" validate:"max=32"`
	}
	type response struct {
		Message string               `json:"message"`
		User    models.PublicAccount `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := s.Register(r.Context(), auth.RegisterParams{
			Email:    data.Email,
			Password: data.Password,
			Role:     data.Role,
			Name:     data.Name,
			Phone:    data.Phone,
		})
		switch {
		case errors.Is(err, apperrors.ErrAccountAlreadyExists):
			render.ServiceError(w, "Account already exists", http.StatusConflict)
			return
		case errors.Is(err, apperrors.ErrInvalidRole), errors.Is(err, apperrors.ErrValidation):
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		case err != nil:
			l.Error("register failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSONWithStatus(w, response{Message: "Account registered", User: account}, http.StatusCreated)
	})
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		tokensResponse
		User models.PublicAccount `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := s.ValidateCredentials(r.Context(), data.Email, data.Password)
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			return
		case err != nil:
			l.Error("credentials check failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		result, err := s.Login(r.Context(), account)
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			return
		case err != nil:
			l.Error("login failed", "account_id", account.ID, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			tokensResponse: tokensResponse{
				AccessToken:  result.Pair.Access.Value,
				RefreshToken: result.Pair.Refresh.Value,
			},
			User: result.Account,
		})
	})
}

// Refresh guard has to be applied before
func handleRefresh(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := userctx.FromContext(r.Context())

		pair, err := s.Refresh(r.Context(), claims.Subject, claims.RefreshToken)
		switch {
		case errors.Is(err, apperrors.ErrAccessDenied):
			render.ServiceError(w, "Access denied", http.StatusForbidden)
			return
		case err != nil:
			l.Error("refresh failed", "account_id", claims.Subject, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, tokensResponse{AccessToken: pair.Access.Value, RefreshToken: pair.Refresh.Value})
	})
}

func handleLogout(s authService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := userctx.FromContext(r.Context())

		if err := s.Logout(r.Context(), claims.Subject); err != nil {
			l.Error("logout failed", "account_id", claims.Subject, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: "Logged out"})
	})
}

func handleMe() http.Handler {
	type response struct {
		Sub   int64       `json:"sub"`
		Role  models.Role `json:"role"`
		Email string      `json:"email"`
		Name  string      `json:"name"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{Sub: claims.Subject, Role: claims.Role, Email: claims.Email, Name: claims.Name})
	})
}
