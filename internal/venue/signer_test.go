package venue_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
	"testing"

	"github.com/skumar2006/kalshiparlay/internal/venue"
)

// ── Key fixtures ──────────────────────────────────────────────────────────────

func generateTestKey(t *testing.T) (*rsa.PrivateKey, string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal PKCS#8: %v", err)
	}
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	b64 := base64.StdEncoding.EncodeToString(der)
	return key, pemStr, b64
}

func verifyPSS(t *testing.T, pub *rsa.PublicKey, msg, sigB64 string) {
	t.Helper()
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
	digest := sha256.Sum256([]byte(msg))
	err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		t.Fatalf("PSS verification failed: %v", err)
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

// TestSignerSignVerifiable signs with a fixed timestamp and verifies the
// signature against the public key using the documented PSS parameters.
func TestSignerSignVerifiable(t *testing.T) {
	key, pemStr, _ := generateTestKey(t)

	signer, err := venue.NewSigner("key-123", pemStr)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	const ts, method, path = "1700000000000", "POST", "/portfolio/orders"
	sig, err := signer.Sign(ts, method, path)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	verifyPSS(t, &key.PublicKey, ts+method+path, sig)
}

// The key material may arrive as bare base64 DER (no PEM armor) or with
// escaped newlines from env files; both forms must parse.
func TestSignerKeyNormalization(t *testing.T) {
	key, pemStr, b64 := generateTestKey(t)

	forms := map[string]string{
		"bare base64":      b64,
		"escaped newlines": strings.ReplaceAll(pemStr, "\n", `\n`),
		"padded":           "  " + pemStr + "\n",
	}
	for name, material := range forms {
		t.Run(name, func(t *testing.T) {
			signer, err := venue.NewSigner("key-123", material)
			if err != nil {
				t.Fatalf("NewSigner(%s): %v", name, err)
			}
			sig, err := signer.Sign("1", "GET", "/markets/x")
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			verifyPSS(t, &key.PublicKey, "1GET/markets/x", sig)
		})
	}
}

func TestSignerRejectsBadKey(t *testing.T) {
	for _, material := range []string{"", "not a key", "aGVsbG8="} {
		if _, err := venue.NewSigner("key-123", material); !errors.Is(err, venue.ErrBadSigningKey) {
			t.Errorf("NewSigner(%q): got %v, want ErrBadSigningKey", material, err)
		}
	}
}

func TestSignerHeaders(t *testing.T) {
	_, pemStr, _ := generateTestKey(t)
	signer, err := venue.NewSigner("my-key-id", pemStr)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	headers, err := signer.Headers("GET", "/markets/ABC")
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if headers["ACCESS-KEY"] != "my-key-id" {
		t.Errorf("ACCESS-KEY = %q, want my-key-id", headers["ACCESS-KEY"])
	}
	if headers["ACCESS-TIMESTAMP"] == "" {
		t.Error("ACCESS-TIMESTAMP is empty")
	}
	if headers["ACCESS-SIGNATURE"] == "" {
		t.Error("ACCESS-SIGNATURE is empty")
	}
}
