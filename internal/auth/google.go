// Package auth verifies Google sign-in credentials and issues session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// ErrInvalidCredential is returned when a Google ID token fails verification.
var ErrInvalidCredential = errors.New("auth: invalid google credential")

// Identity is the verified subset of a Google ID token.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// PayloadValidator validates an ID token for an audience. *idtoken.Validator
// satisfies it.
type PayloadValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier checks ID tokens issued to a single OAuth client.
type GoogleVerifier struct {
	validator PayloadValidator
	clientID  string
}

// NewGoogleVerifier builds a verifier backed by Google's published keys.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("create id token validator: %w", err)
	}
	return NewGoogleVerifierWithValidator(validator, clientID), nil
}

// NewGoogleVerifierWithValidator builds a verifier around an existing validator.
func NewGoogleVerifierWithValidator(validator PayloadValidator, clientID string) *GoogleVerifier {
	return &GoogleVerifier{validator: validator, clientID: strings.TrimSpace(clientID)}
}

// Verify validates credential and extracts the account identity. Every
// failure wraps ErrInvalidCredential.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if v == nil || v.validator == nil {
		return Identity{}, fmt.Errorf("GoogleVerifier is not configured")
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
	}

	payload, err := v.validator.Validate(ctx, credential, v.clientID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if payload == nil || payload.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	identity := Identity{
		Subject: payload.Subject,
		Email:   strings.ToLower(claimString(payload.Claims, "email")),
		Name:    claimString(payload.Claims, "name"),
		Picture: claimString(payload.Claims, "picture"),
	}
	switch verified := payload.Claims["email_verified"].(type) {
	case bool:
		identity.EmailVerified = verified
	case string:
		identity.EmailVerified = strings.EqualFold(verified, "true")
	}
	if identity.Email == "" {
		return Identity{}, fmt.Errorf("%w: missing email", ErrInvalidCredential)
	}
	return identity, nil
}

func claimString(claims map[string]interface{}, key string) string {
	if claims == nil {
		return ""
	}
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}
