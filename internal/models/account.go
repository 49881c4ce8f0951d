package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/nkiryanov/posauth/internal/apperrors"
)

// Role is the privilege level of an account
// Canonical form is upper case without separators
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleManager     Role = "MANAGER"
	RoleCashier     Role = "CASHIER"
	RoleStockKeeper Role = "STOCKKEEPER"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:       {},
	RoleManager:     {},
	RoleCashier:     {},
	RoleStockKeeper: {},
}

var roleReplacer = strings.NewReplacer("_", "", "-", "", " ", "")

// ParseRole normalizes any casing ('Admin', 'stock_keeper', 'StockKeeper') to canonical Role
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToUpper(roleReplacer.Replace(strings.TrimSpace(value))))
	if _, ok := knownRoles[role]; !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidRole, value)
	}
	return role, nil
}

func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// Account row as stored in credential store
type Account struct {
	ID           int64
	CreatedAt    time.Time
	Email        string
	PasswordHash string
	Role         Role
	Name         string
	Phone        string

	// Hash of the only valid refresh token; nil when no session exists
	RefreshTokenHash *string

	IsActive bool
}

// Public returns account projection that safe to return to clients
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Email:     a.Email,
		Role:      a.Role,
		Name:      a.Name,
		Phone:     a.Phone,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}

type PublicAccount struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail trims and lower cases email, so uniqueness is case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
