package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/handlers/render"
	"github.com/nkiryanov/posauth/internal/logger"
)

func accountID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func handleGetAccount(s accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(r)
		if !ok {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		account, err := s.Get(r.Context(), id)
		switch {
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Account not found", http.StatusNotFound)
			return
		case err != nil:
			l.Error("get account failed", "account_id", id, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, account)
	})
}

func handleSetAccountActive(s accountService, l logger.Logger) http.Handler {
	type request struct {
		Active *bool `json:"active" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(r)
		if !ok {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := s.SetActive(r.Context(), id, *data.Active)
		switch {
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Account not found", http.StatusNotFound)
			return
		case err != nil:
			l.Error("set account active failed", "account_id", id, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, account)
	})
}
