// Package auth authenticates SCIM requests. EndpointAuthenticator and
// JWTAuthenticator generalize a single static per-plugin secret model
// to the per-endpoint stored credential set in package store.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthType represents the type of authentication
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeJWT    AuthType = "jwt"
)

// Authenticator defines the interface for authentication
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// BasicAuthenticator implements HTTP Basic authentication
type BasicAuthenticator struct {
	Username string
	Password string
}

// NewBasicAuthenticator creates a new basic authenticator
func NewBasicAuthenticator(username, password string) *BasicAuthenticator {
	return &BasicAuthenticator{Username: username, Password: password}
}

// Authenticate validates basic authentication credentials
func (ba *BasicAuthenticator) Authenticate(r *http.Request) error {
	username, password, err := parseBasicHeader(r)
	if err != nil {
		return err
	}

	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(ba.Username)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(ba.Password)) == 1
	if !usernameMatch || !passwordMatch {
		return fmt.Errorf("invalid credentials")
	}
	return nil
}

func parseBasicHeader(r *http.Request) (username, password string, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "", fmt.Errorf("missing authorization header")
	}
	if !strings.HasPrefix(header, "Basic ") {
		return "", "", fmt.Errorf("invalid authorization type")
	}
	payload, err := base64.StdEncoding.DecodeString(header[6:])
	if err != nil {
		return "", "", fmt.Errorf("invalid base64 encoding")
	}
	parts := strings.SplitN(string(payload), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid authorization format")
	}
	return parts[0], parts[1], nil
}

// BearerAuthenticator implements Bearer token authentication
type BearerAuthenticator struct {
	Token string
}

// NewBearerAuthenticator creates a new bearer token authenticator
func NewBearerAuthenticator(token string) *BearerAuthenticator {
	return &BearerAuthenticator{Token: token}
}

// Authenticate validates bearer token
func (ba *BearerAuthenticator) Authenticate(r *http.Request) error {
	token, err := parseBearerHeader(r)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(ba.Token)) != 1 {
		return fmt.Errorf("invalid token")
	}
	return nil
}

func parseBearerHeader(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("invalid authorization type")
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}

// CredentialChecker matches a (kind, username, secret) triple against a
// stored credential set. store.Endpoint satisfies this interface.
type CredentialChecker interface {
	Authenticate(kind, username, secret string) bool
}

// EndpointAuthenticator authenticates against an endpoint's stored,
// hashed, expirable credential set rather than one static secret
// shared by the whole plugin, generalizing BasicAuthenticator/
// BearerAuthenticator to the multi-tenant credential model.
type EndpointAuthenticator struct {
	Endpoint CredentialChecker
}

// NewEndpointAuthenticator creates an authenticator bound to one
// endpoint's stored credentials.
func NewEndpointAuthenticator(endpoint CredentialChecker) *EndpointAuthenticator {
	return &EndpointAuthenticator{Endpoint: endpoint}
}

// Authenticate tries Basic then Bearer against the endpoint's
// credential set.
func (ea *EndpointAuthenticator) Authenticate(r *http.Request) error {
	if username, password, err := parseBasicHeader(r); err == nil {
		if ea.Endpoint.Authenticate("basic", username, password) {
			return nil
		}
		return fmt.Errorf("invalid credentials")
	}
	if token, err := parseBearerHeader(r); err == nil {
		if ea.Endpoint.Authenticate("bearer", "", token) {
			return nil
		}
		return fmt.Errorf("invalid token")
	}
	return fmt.Errorf("missing authorization header")
}

// JWTAuthenticator implements Authenticator for RSA-signed JWT bearer
// tokens.
type JWTAuthenticator struct {
	publicKey *rsa.PublicKey
	audience  string
	issuer    string
}

type contextKey string

// ClaimsContextKey is the request context key JWTAuthenticator stores
// validated claims under.
const ClaimsContextKey contextKey = "jwt_claims"

// NewJWTAuthenticator loads an RSA public key from a PEM file and
// returns a JWT bearer-token authenticator.
func NewJWTAuthenticator(publicKeyPath, audience, issuer string) (*JWTAuthenticator, error) {
	keyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return &JWTAuthenticator{publicKey: rsaKey, audience: audience, issuer: issuer}, nil
}

// Authenticate validates the request's Bearer JWT and stamps its
// claims into the request context.
func (j *JWTAuthenticator) Authenticate(r *http.Request) error {
	tokenString, err := parseBearerHeader(r)
	if err != nil {
		return err
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.publicKey, nil
	})
	if err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("invalid claims format")
	}

	if j.audience != "" {
		aud, ok := claims["aud"].(string)
		if !ok || aud != j.audience {
			return fmt.Errorf("invalid audience")
		}
	}
	if j.issuer != "" {
		iss, ok := claims["iss"].(string)
		if !ok || iss != j.issuer {
			return fmt.Errorf("invalid issuer")
		}
	}

	*r = *r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims))
	return nil
}

// ClaimsFromContext retrieves JWT claims stamped by JWTAuthenticator,
// if any were set on r's context.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(jwt.MapClaims)
	return claims, ok
}

// MultiAuthenticator supports multiple authentication methods
type MultiAuthenticator struct {
	Authenticators []Authenticator
}

// NewMultiAuthenticator creates a new multi-authenticator
func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	return &MultiAuthenticator{Authenticators: authenticators}
}

// Authenticate tries each authenticator until one succeeds
func (ma *MultiAuthenticator) Authenticate(r *http.Request) error {
	if len(ma.Authenticators) == 0 {
		return nil
	}

	var lastErr error
	for _, a := range ma.Authenticators {
		if err := a.Authenticate(r); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("authentication failed")
}

// Middleware creates an authentication middleware
func Middleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authenticator == nil {
				next.ServeHTTP(w, r)
				return
			}

			if err := authenticator.Authenticate(r); err != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="SCIM Gateway"`)
				w.Header().Set("Content-Type", "application/scim+json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:Error"],"status":"401","detail":"Unauthorized"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NoAuth returns a no-op authenticator
type NoAuth struct{}

// Authenticate always succeeds
func (n *NoAuth) Authenticate(r *http.Request) error {
	return nil
}
