package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
)

// TokenVerifier resolves a bearer token issued by an identity provider
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
	Close() error
}

// Claims are the Zitadel access token claims this service reads
type Claims struct {
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	jwt.RegisteredClaims
}

// Identity maps the claims onto a caller. The display name falls back to the
// preferred username, then to the local part of the email.
func (c *Claims) Identity() *Identity {
	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	if name == "" && c.Email != "" {
		name, _, _ = strings.Cut(c.Email, "@")
	}
	return &Identity{UserID: c.Subject, Email: c.Email, Name: name}
}

// JWKSVerifier checks RS/ES signed tokens against the provider's key set
type JWKSVerifier struct {
	keyfunc  jwt.Keyfunc
	issuer   string
	audience string
	stop     context.CancelFunc
}

var discoveryClient = &http.Client{Timeout: 10 * time.Second}

// Issuer returns the configured issuer, or https://<domain> when only the
// domain is set
func Issuer(cfg *config.ZitadelConfig) string {
	if issuer := strings.TrimRight(cfg.Issuer, "/"); issuer != "" {
		return issuer
	}
	if cfg.Domain == "" {
		return ""
	}
	return "https://" + strings.TrimRight(cfg.Domain, "/")
}

// NewJWKSVerifier discovers the key set of the configured issuer. Keys are
// refreshed in the background until Close.
func NewJWKSVerifier(cfg *config.ZitadelConfig) (*JWKSVerifier, error) {
	issuer := Issuer(cfg)
	if issuer == "" {
		return nil, errors.New("zitadel issuer or domain is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jwksURL, err := discoverJWKSURL(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(refreshCtx, []string{jwksURL})
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}

	v := newJWKSVerifier(jwks.Keyfunc, issuer, cfg.ClientID)
	v.stop = stop
	return v, nil
}

func newJWKSVerifier(kf jwt.Keyfunc, issuer, audience string) *JWKSVerifier {
	return &JWKSVerifier{keyfunc: kf, issuer: issuer, audience: audience, stop: func() {}}
}

// discoverJWKSURL reads jwks_uri from the OIDC discovery document. The
// document must name the same issuer.
func discoverJWKSURL(ctx context.Context, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}

	resp, err := discoveryClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}

	switch {
	case doc.JWKSURI == "":
		return "", errors.New("jwks_uri not found in discovery document")
	case doc.Issuer != "" && strings.TrimRight(doc.Issuer, "/") != issuer:
		return "", fmt.Errorf("discovery document issuer %q does not match %q", doc.Issuer, issuer)
	}
	return doc.JWKSURI, nil
}

// Verify checks signature, issuer, expiry and, when a client id is
// configured, the audience
func (v *JWKSVerifier) Verify(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}),
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(tokenString, &claims, v.keyfunc, opts...); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if v.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil || !slices.Contains(aud, v.audience) {
			return nil, fmt.Errorf("token not issued for %s", v.audience)
		}
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims.Identity(), nil
}

// Close stops the background key refresh
func (v *JWKSVerifier) Close() error {
	v.stop()
	return nil
}
