package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidToken is returned for malformed, forged or incomplete session tokens.
	ErrInvalidToken = errors.New("auth: invalid session token")
	// ErrTokenExpired is returned when a session token is past its expiry.
	ErrTokenExpired = errors.New("auth: session token expired")
)

const (
	signingKeySize = 32
	signingKeyInfo = "calendar-service session signing key"
	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 16
)

// Claims identify the session a token was issued for.
type Claims struct {
	UserID    string
	Email     string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 session tokens.
type TokenIssuer struct {
	key []byte
	now func() time.Time
}

// NewTokenIssuer derives the HMAC key from secret.
func NewTokenIssuer(secret string, now func() time.Time) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: secret must be at least %d bytes", MinSecretLength)
	}
	if now == nil {
		now = time.Now
	}

	key := make([]byte, signingKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("auth: derive signing key: %w", err)
	}
	return &TokenIssuer{key: key, now: now}, nil
}

// Issue signs a token carrying claims.
func (t *TokenIssuer) Issue(claims Claims) (string, error) {
	if t == nil {
		return "", fmt.Errorf("TokenIssuer is nil")
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return "", fmt.Errorf("%w: user and session ids are required", ErrInvalidToken)
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = t.now()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.SessionID,
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry of raw and returns its claims.
func (t *TokenIssuer) Parse(raw string) (Claims, error) {
	if t == nil {
		return Claims{}, fmt.Errorf("TokenIssuer is nil")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.UserID == "" || parsed.ID == "" {
		return Claims{}, fmt.Errorf("%w: missing user or session id", ErrInvalidToken)
	}

	claims := Claims{
		UserID:    parsed.UserID,
		Email:     parsed.Email,
		SessionID: parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
