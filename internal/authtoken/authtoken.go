// Package authtoken issues and verifies the HS256 bearer tokens handed out at login.
package authtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = time.Hour

var (
	ErrInvalidConfig = errors.New("token signing key and issuer are required")
	ErrInvalidToken  = errors.New("invalid bearer token")
)

// Config carries the signing parameters.
type Config struct {
	SigningKey string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// Claims is the token payload. Subject holds the account id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject into a domain id.
func (claims *Claims) UserID() (vending.UserID, error) {
	return vending.NewUserID(claims.Subject)
}

// Issuer implements vending.TokenIssuer.
type Issuer struct {
	key    []byte
	config Config
	nowFn  func() time.Time
}

// NewIssuer validates cfg. A non-positive TTL selects one hour.
func NewIssuer(cfg Config, now func() time.Time) (*Issuer, error) {
	if len(cfg.SigningKey) == 0 || strings.TrimSpace(cfg.Issuer) == "" {
		return nil, ErrInvalidConfig
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{key: []byte(cfg.SigningKey), config: cfg, nowFn: now}, nil
}

func (issuer *Issuer) IssueToken(account vending.Account) (vending.Token, error) {
	issuedAt := issuer.nowFn().UTC()
	expiresAt := issuedAt.Add(issuer.config.TTL)
	claims := Claims{
		Email: account.Email.String(),
		Role:  account.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    issuer.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if issuer.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{issuer.config.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.key)
	if err != nil {
		return vending.Token{}, fmt.Errorf("sign token: %w", err)
	}
	return vending.Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, issuer, audience and expiry.
func (issuer *Issuer) Verify(raw string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(issuer.nowFn),
	}
	if issuer.config.Audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(issuer.config.Audience))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return issuer.key, nil
	}, parserOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
