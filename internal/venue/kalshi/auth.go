// Package kalshi implements the Kalshi venue client: RSA-PSS request
// signing, REST order placement, and the data this module's callers need
// (executor.OrderPlacer, executor.Authenticator, executor.SDKWarmer,
// orders.VenueClient, exit.SellExecutor, executor.Resolver) — the same
// interface set internal/venue/polymarket implements, so internal/app can
// wire either venue behind the executor unchanged.
//
// Grounded on sdibella-kalshi-btc15m/internal/kalshi/auth.go: Kalshi signs
// each request with RSA-PSS over "timestampMs+method+path" rather than
// Polymarket's EIP-712/HMAC scheme, so this package owns its own signer
// instead of reusing internal/venue/polymarket/auth.go.
package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"time"
)

// AuthConfig bundles the credentials needed to sign Kalshi requests.
type AuthConfig struct {
	AccessKey     string
	PrivateKeyPEM string
}

// Auth signs Kalshi REST requests with the configured RSA private key.
type Auth struct {
	accessKey string
	key       *rsa.PrivateKey
}

// NewAuth parses cfg.PrivateKeyPEM and returns a ready signer.
func NewAuth(cfg AuthConfig) (*Auth, error) {
	key, err := parsePrivateKeyPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse kalshi private key: %w", err)
	}
	return &Auth{accessKey: cfg.AccessKey, key: key}, nil
}

// parsePrivateKeyPEM decodes a PEM-encoded RSA key, trying PKCS8 first
// (Kalshi's documented export format) and falling back to PKCS1.
func parsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PEM block is not an RSA key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// sign computes the base64 RSA-PSS signature over timestampMS+method+path.
func (a *Auth) sign(timestampMS, method, path string) (string, error) {
	message := timestampMS + method + path
	hashed := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, a.key, crypto.SHA256, hashed[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Headers returns the three KALSHI-ACCESS-* headers required on every
// authenticated request.
func (a *Auth) Headers(method, path string) (map[string]string, error) {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	sig, err := a.sign(ts, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       a.accessKey,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}
