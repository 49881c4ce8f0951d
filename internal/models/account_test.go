package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/posauth/internal/apperrors"
)

func TestParseRole(t *testing.T) {
	t.Run("valid value", func(t *testing.T) {
		tests := []struct {
			input    string
			expected Role
		}{
			{"ADMIN", RoleAdmin},
			{"Admin", RoleAdmin},
			{" admin ", RoleAdmin},
			{"manager", RoleManager},
			{"Cashier", RoleCashier},
			{"STOCKKEEPER", RoleStockKeeper},
			{"StockKeeper", RoleStockKeeper},
			{"stock_keeper", RoleStockKeeper},
			{"stock-keeper", RoleStockKeeper},
		}

		for _, tt := range tests {
			t.Run(tt.input, func(t *testing.T) {
				got, err := ParseRole(tt.input)

				require.NoError(t, err)
				require.Equal(t, tt.expected, got)
			})
		}
	})

	t.Run("not valid", func(t *testing.T) {
		for _, value := range []string{"", "root", "customer"} {
			_, err := ParseRole(value)

			require.Error(t, err, "role %q must not be parsed", value)
			require.ErrorIs(t, err, apperrors.ErrInvalidRole)
		}
	})
}

func TestAccount_Public(t *testing.T) {
	hash := "refresh-hash"
	a := Account{
		ID:               12,
		Email:            "bob@x.com",
		PasswordHash:     "secret-hash",
		Role:             RoleCashier,
		Name:             "Bob",
		RefreshTokenHash: &hash,
		IsActive:         true,
	}

	p := a.Public()

	require.Equal(t, int64(12), p.ID)
	require.Equal(t, "bob@x.com", p.Email)
	require.Equal(t, RoleCashier, p.Role)
	require.Equal(t, "Bob", p.Name)
	require.True(t, p.IsActive)
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "bob@x.com", NormalizeEmail("  Bob@X.com "))
}
