package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing authorization header")
	ErrMalformed     = errors.New("invalid authorization header format")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

// Identity is the caller resolved from a bearer token
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator checks bearer tokens against the JWKS verifier first and
// falls back to HMAC tokens when a secret is set
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

// NewAuthenticator creates an authenticator. Either argument may be empty.
func NewAuthenticator(verifier TokenVerifier, secret string) *Authenticator {
	return &Authenticator{verifier: verifier, secret: secret}
}

// Authenticate resolves an Authorization header value
func (a *Authenticator) Authenticate(header string) (*Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	if a.verifier != nil {
		if id, err := a.verifier.Verify(token); err == nil {
			return id, nil
		}
		if a.secret == "" {
			return nil, ErrInvalidToken
		}
	}

	if a.secret == "" {
		return nil, ErrNotConfigured
	}

	claims, err := ValidateLegacyToken(token, a.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// Close releases the verifier's background resources
func (a *Authenticator) Close() error {
	if a.verifier == nil {
		return nil
	}
	return a.verifier.Close()
}

// BearerToken extracts the token from "Bearer <token>"
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMalformed
	}
	return strings.TrimSpace(parts[1]), nil
}
