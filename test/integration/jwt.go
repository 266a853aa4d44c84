package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://auth.test.brokerdesk.dev"
	testAudience = "brokerdesk-test"
	testKeyID    = "test-key-1"
)

// tokenIssuer signs test JWTs with a throwaway RSA key and serves the
// matching JWKS document over an httptest server, so the dashboard's
// authenticator verifies them exactly as it would production tokens.
type tokenIssuer struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newTokenIssuer() (*tokenIssuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	issuer := &tokenIssuer{key: key}
	issuer.server = httptest.NewServer(http.HandlerFunc(issuer.serveJWKS))
	return issuer, nil
}

func (ti *tokenIssuer) JWKSURL() string {
	return ti.server.URL
}

func (ti *tokenIssuer) Close() {
	ti.server.Close()
}

func (ti *tokenIssuer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	pub := &ti.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"kid": testKeyID,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{jwk}})
}

// TestClaims describes the identity baked into a generated token.
type TestClaims struct {
	SubjectID string
	BrokerID  string
	Email     string
	Roles     []string
	Extra     map[string]any
}

// GenerateToken signs a token valid for one hour.
func (ti *tokenIssuer) GenerateToken(tc TestClaims) (string, error) {
	return ti.generate(tc, time.Now().Add(time.Hour))
}

// GenerateExpiredToken signs a token whose lifetime ended well outside the
// authenticator's clock-skew leeway.
func (ti *tokenIssuer) GenerateExpiredToken(tc TestClaims) (string, error) {
	return ti.generate(tc, time.Now().Add(-time.Hour))
}

func (ti *tokenIssuer) generate(tc TestClaims, expiry time.Time) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": tc.SubjectID,
		"iat": now.Unix(),
		"exp": expiry.Unix(),
		"jti": fmt.Sprintf("%x", sha256.Sum256([]byte(tc.SubjectID+expiry.String()))),
	}
	if tc.BrokerID != "" {
		claims["broker_id"] = tc.BrokerID
	}
	if tc.Email != "" {
		claims["email"] = tc.Email
	}
	if len(tc.Roles) > 0 {
		roles := make([]any, len(tc.Roles))
		for i, r := range tc.Roles {
			roles[i] = r
		}
		claims["roles"] = roles
	}
	for k, v := range tc.Extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(ti.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
