package models

import (
	"time"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Claims of authenticated request
// Produced by token manager and request guards only
type Claims struct {
	Subject int64
	Role    Role

	// Set by guards after the account liveness check
	Email string
	Name  string

	// Raw refresh token as presented by client. Set by refresh guard only
	RefreshToken string
}
