package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Agent token primitives =====
//
// Registration mints a bearer token bound to the new agent's id; every later
// call (heartbeat, poll, claim, complete) authenticates with it. Token
// issuance *policy* lives outside this core; this is just the credential.

type AuthConfig struct {
	HMACSecret []byte
	TTL        time.Duration
}

type AuthManager struct{ cfg AuthConfig }

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	return &AuthManager{cfg: AuthConfig{
		HMACSecret: []byte(secret),
		TTL:        ttl, // e.g., 24 * time.Hour
	}}
}

type AgentClaims struct {
	Region string `json:"region"`
	jwt.RegisteredClaims
}

func (a *AuthManager) Mint(agentID, region string) (string, error) {
	now := time.Now()
	claims := AgentClaims{
		Region: region,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   agentID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.cfg.HMACSecret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*AgentClaims, error) {
	// Authorization: Bearer <jwt>
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, errors.New("missing token")
	}
	if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return nil, errors.New("malformed authorization header")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*AgentClaims, error) {
	claims := &AgentClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
