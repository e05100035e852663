package venue

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadSigningKey is a fatal configuration error: the private key cannot be
// parsed or the venue rejects our signature.  Never retried blindly.
var ErrBadSigningKey = errors.New("venue signing key is invalid")

// Signer produces the three authentication headers the venue requires on every
// request:
//
//	ACCESS-KEY        — the caller's key id
//	ACCESS-TIMESTAMP  — millisecond epoch
//	ACCESS-SIGNATURE  — base64 RSA-PSS signature (SHA-256, MGF1 salt length =
//	                    digest length) over "timestamp + method + path"
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner parses the PKCS#8 private key and returns a Signer.  The key
// material may be full PEM or bare base64 DER; both forms are normalized.
func NewSigner(keyID, privateKey string) (*Signer, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("venue.NewSigner: %w: %v", ErrBadSigningKey, err)
	}
	return &Signer{keyID: keyID, key: key}, nil
}

// KeyID returns the configured ACCESS-KEY id.
func (s *Signer) KeyID() string { return s.keyID }

// Headers signs method+path at the current time and returns the full header
// set for one request.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := s.Sign(ts, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"ACCESS-KEY":       s.keyID,
		"ACCESS-TIMESTAMP": ts,
		"ACCESS-SIGNATURE": sig,
	}, nil
}

// Sign computes the base64 RSA-PSS signature over "timestamp + method + path".
// Exposed separately from Headers so tests can verify with a fixed timestamp.
func (s *Signer) Sign(timestamp, method, path string) (string, error) {
	msg := []byte(timestamp + method + path)
	digest := sha256.Sum256(msg)

	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("venue.Sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// parsePrivateKey accepts a PKCS#8 key in PEM form, with escaped "\n"
// sequences (common when passed through env vars), or as bare base64 DER, and
// returns the parsed RSA key.
func parsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(raw, `\n`, "\n"))
	if normalized == "" {
		return nil, errors.New("empty key material")
	}

	var der []byte
	if block, _ := pem.Decode([]byte(normalized)); block != nil {
		der = block.Bytes
	} else {
		// Bare base64: strip whitespace and decode directly.
		compact := strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, normalized)
		decoded, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return nil, fmt.Errorf("neither PEM nor base64: %w", err)
		}
		der = decoded
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS#8: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, want *rsa.PrivateKey", parsed)
	}
	return rsaKey, nil
}
