// Package tlspolicy resolves the TLS trust posture for a run and produces the
// transport applied to every outbound call. The policy is an explicit value
// threaded through the clients; process-wide TLS state is never mutated.
package tlspolicy

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ALastoff/LicenseView/internal/models"
)

// Policy describes how certificates are validated for one run. A Policy is
// immutable once constructed and applied identically to every request.
//
// Verification, pinning, and bundle trust are not mutually exclusive: when
// both a pinned thumbprint and a CA bundle are configured, the pin is checked
// in addition to bundle-based chain validation, and a pin mismatch always
// fails the handshake regardless of chain validity.
type Policy struct {
	// Verify enables certificate chain validation. Disabling it downgrades
	// chain failures to a loud warning but never silences pin mismatches.
	Verify bool
	// PinnedThumbprint is the expected SHA-256 fingerprint of the leaf
	// certificate. Separators and letter case are ignored. Empty disables
	// pinning.
	PinnedThumbprint string
	// CABundlePath, when set, is the only trust anchor source; the system
	// store is not consulted.
	CABundlePath string
}

// NormalizeThumbprint canonicalizes a certificate fingerprint for comparison:
// colons, spaces, and case differences are ignored.
func NormalizeThumbprint(thumbprint string) string {
	replacer := strings.NewReplacer(":", "", " ", "", "-", "")
	return strings.ToLower(replacer.Replace(thumbprint))
}

// Fingerprint returns the canonical SHA-256 fingerprint of a DER-encoded
// certificate.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// Warnings returns the operator-visible warnings this policy requires before
// the first network call. The caller must surface them non-suppressibly.
func (p Policy) Warnings() []string {
	var warnings []string
	if !p.Verify {
		warnings = append(warnings,
			"TLS certificate validation is DISABLED; connections are vulnerable to interception. Use only in trusted environments.")
	}
	return warnings
}

// TLSConfig builds the tls.Config implementing this policy.
func (p Policy) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if !p.Verify {
		// Chain validation off; the pin check below still runs.
		cfg.InsecureSkipVerify = true // #nosec G402 -- explicit operator opt-out, surfaced via Warnings
	}

	if p.CABundlePath != "" {
		pem, err := os.ReadFile(p.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle %s: %w", p.CABundlePath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no usable certificates", p.CABundlePath)
		}
		cfg.RootCAs = pool
	}

	if p.PinnedThumbprint != "" {
		expected := NormalizeThumbprint(p.PinnedThumbprint)
		// VerifyPeerCertificate runs even when InsecureSkipVerify is set, so
		// the pin is enforced in every mode.
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return &models.TLSValidationError{
					Pinned:   true,
					Expected: expected,
					Actual:   "",
				}
			}
			actual := Fingerprint(rawCerts[0])
			if actual != expected {
				return &models.TLSValidationError{
					Pinned:   true,
					Expected: expected,
					Actual:   actual,
				}
			}
			return nil
		}
	}

	return cfg, nil
}

// Transport builds the HTTP transport implementing this policy.
func (p Policy) Transport() (*http.Transport, error) {
	tlsCfg, err := p.TLSConfig()
	if err != nil {
		return nil, err
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsCfg,
	}, nil
}
