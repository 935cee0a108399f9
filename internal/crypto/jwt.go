package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "tableserve"
	tokenAudience = "tableserve-api"

	// DefaultTokenExpiry is the validity window of an issued token.
	DefaultTokenExpiry = 24 * time.Hour
)

var (
	ErrMissingSigningKey = errors.New("token signing key is not configured")
	ErrMalformedToken    = errors.New("malformed token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrInvalidToken      = errors.New("invalid token")
)

// TokenService issues and verifies HS256 bearer tokens whose subject is a username.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a TokenService. A non-positive expiry falls back to DefaultTokenExpiry.
func NewTokenService(secret string, expiry time.Duration, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}

	s := &TokenService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Expiry returns the validity window applied to new tokens.
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// Issue creates a signed token for subject and returns it with its expiry.
// The returned expiry matches the exp claim, which has whole-second precision.
func (s *TokenService) Issue(subject string) (string, time.Time, error) {
	now := s.now().Truncate(jwt.TimePrecision)
	exp := now.Add(s.expiry)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ExtractSubject verifies tokenString and returns the subject it carries.
func (s *TokenService) ExtractSubject(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", classify(err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrMalformedToken
	}

	return claims.Subject, nil
}

// IsValid reports whether tokenString verifies and was issued for expectedSubject.
func (s *TokenService) IsValid(tokenString, expectedSubject string) bool {
	subject, err := s.ExtractSubject(tokenString)
	if err != nil {
		return false
	}
	return subject == expectedSubject
}

func (s *TokenService) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidSignature
	}
	return s.secret, nil
}

// classify maps jwt parser errors onto this package's sentinels.
// Claims are only validated once the signature checks out, so an expired
// token with a bad signature is reported as ErrInvalidSignature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return ErrInvalidToken
	}
}
