package tokenmanager

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/posauth/internal/apperrors"
	"github.com/nkiryanov/posauth/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultSigningMethod   = "HS256"
)

// Kind of token: each kind has own secret and lifetime
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type TokenClaims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
	Type Kind        `json:"typ"`
}

// Token manager with sensible default
type Config struct {
	// Secrets to sign access and refresh tokens
	// Both required and must differ
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	alg jwt.SigningMethod
	now func() time.Time

	access  signer
	refresh signer
}

type signer struct {
	key []byte
	ttl time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, errors.New("access and refresh secrets must not be empty")
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing method %q is not supported: HMAC only", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		alg:     alg,
		now:     cfg.Now,
		access:  signer{key: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL},
		refresh: signer{key: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL},
	}, nil
}

func (m *TokenManager) signer(kind Kind) (signer, error) {
	switch kind {
	case KindAccess:
		return m.access, nil
	case KindRefresh:
		return m.refresh, nil
	default:
		return signer{}, fmt.Errorf("unknown token kind %q", kind)
	}
}

// IssuePair signs access and refresh tokens for the account with the same subject and role
func (m *TokenManager) IssuePair(accountID int64, role models.Role) (models.TokenPair, error) {
	now := m.now().Truncate(time.Second)

	access, err := m.issue(KindAccess, accountID, role, now)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.issue(KindRefresh, accountID, role, now)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) issue(kind Kind, accountID int64, role models.Role, now time.Time) (models.IssuedToken, error) {
	s, err := m.signer(kind)
	if err != nil {
		return models.IssuedToken{}, err
	}
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(
		m.alg,
		TokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   strconv.FormatInt(accountID, 10),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Role: role,
			Type: kind,
		},
	)

	value, err := token.SignedString(s.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates token of given kind
// Any failure is apperrors.ErrUnauthorized
func (m *TokenManager) Verify(value string, kind Kind) (models.Claims, error) {
	s, err := m.signer(kind)
	if err != nil {
		return models.Claims{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	claims := &TokenClaims{}
	_, err = jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return models.Claims{}, fmt.Errorf("%w: error while parsing or validating token. Err: %w", apperrors.ErrUnauthorized, err)
	}

	if claims.Type != kind {
		return models.Claims{}, fmt.Errorf("%w: expected %s token, got %q", apperrors.ErrUnauthorized, kind, claims.Type)
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subject <= 0 {
		return models.Claims{}, fmt.Errorf("%w: subject %q is not a positive integer", apperrors.ErrUnauthorized, claims.Subject)
	}

	if !claims.Role.Valid() {
		return models.Claims{}, fmt.Errorf("%w: unknown role %q", apperrors.ErrUnauthorized, claims.Role)
	}

	return models.Claims{Subject: subject, Role: claims.Role}, nil
}
