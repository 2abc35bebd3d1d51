package kalshi

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
)

func generateTestAuth(t *testing.T) *Auth {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	auth, err := NewAuth(AuthConfig{AccessKey: "test-key", PrivateKeyPEM: string(block)})
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	t.Parallel()
	auth := generateTestAuth(t)

	sig, err := auth.sign("1700000000000", "GET", "/trade-api/v2/markets")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}
}

func TestHeadersIncludesAllThreeFields(t *testing.T) {
	t.Parallel()
	auth := generateTestAuth(t)

	headers, err := auth.Headers("GET", "/trade-api/v2/markets")
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	for _, key := range []string{"KALSHI-ACCESS-KEY", "KALSHI-ACCESS-TIMESTAMP", "KALSHI-ACCESS-SIGNATURE"} {
		if headers[key] == "" {
			t.Errorf("missing header %s", key)
		}
	}
	if headers["KALSHI-ACCESS-KEY"] != "test-key" {
		t.Errorf("access key = %q, want test-key", headers["KALSHI-ACCESS-KEY"])
	}
}

func TestParsePrivateKeyPEMRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := parsePrivateKeyPEM("not a pem block")
	if err == nil {
		t.Fatal("expected error for invalid PEM")
	}
	if !strings.Contains(err.Error(), "PEM") {
		t.Errorf("error = %v, want mention of PEM", err)
	}
}
