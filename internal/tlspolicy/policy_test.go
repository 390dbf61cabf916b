package tlspolicy_test

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALastoff/LicenseView/internal/models"
	"github.com/ALastoff/LicenseView/internal/tlspolicy"
)

func TestNormalizeThumbprint(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase_hex", "aabbccdd", "aabbccdd"},
		{"uppercase_hex", "AABBCCDD", "aabbccdd"},
		{"colon_separated", "AA:BB:CC:DD", "aabbccdd"},
		{"space_separated", "aa bb cc dd", "aabbccdd"},
		{"dash_separated", "aa-bb-cc-dd", "aabbccdd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tlspolicy.NormalizeThumbprint(tt.input))
		})
	}
}

func TestWarningsWhenVerificationDisabled(t *testing.T) {
	insecure := tlspolicy.Policy{Verify: false}
	warnings := insecure.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "DISABLED")

	secure := tlspolicy.Policy{Verify: true}
	assert.Empty(t, secure.Warnings())
}

func TestTransportRejectsMissingCABundle(t *testing.T) {
	policy := tlspolicy.Policy{Verify: true, CABundlePath: "/nonexistent/bundle.pem"}

	_, err := policy.Transport()
	assert.Error(t, err)
}

func TestTransportRejectsEmptyCABundle(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(bundle, []byte("not a certificate"), 0o600))

	policy := tlspolicy.Policy{Verify: true, CABundlePath: bundle}

	_, err := policy.Transport()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable certificates")
}

// requestThrough performs one GET against server using the given policy.
func requestThrough(t *testing.T, server *httptest.Server, policy tlspolicy.Policy) error {
	t.Helper()

	transport, err := policy.Transport()
	require.NoError(t, err)

	client := &http.Client{Transport: transport}
	resp, err := client.Get(server.URL)
	if err == nil {
		resp.Body.Close()
	}
	return err
}

func TestPinnedThumbprintMatchAllowsRequest(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	leaf := server.TLS.Certificates[0].Certificate[0]
	policy := tlspolicy.Policy{
		Verify:           false,
		PinnedThumbprint: tlspolicy.Fingerprint(leaf),
	}

	assert.NoError(t, requestThrough(t, server, policy))
}

func TestPinnedThumbprintMismatchFailsHandshake(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Pin a value that cannot match the served leaf certificate.
	policy := tlspolicy.Policy{
		Verify:           false,
		PinnedThumbprint: "00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff",
	}

	err := requestThrough(t, server, policy)
	require.Error(t, err)
	// crypto/tls re-wraps VerifyPeerCertificate errors, so match on either the
	// typed error or its message.
	if !models.IsTLSValidationFailure(err) {
		assert.Contains(t, err.Error(), "pinning failed")
	}
}

func TestPinMismatchFailsEvenWithTrustedChain(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Trust the server certificate through a CA bundle so chain validation
	// passes, then pin a different thumbprint: the pin must still win.
	leaf := server.Certificate()
	bundle := filepath.Join(t.TempDir(), "bundle.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leaf.Raw})
	require.NoError(t, os.WriteFile(bundle, block, 0o600))

	trusted := tlspolicy.Policy{Verify: true, CABundlePath: bundle}
	require.NoError(t, requestThrough(t, server, trusted))

	pinned := trusted
	pinned.PinnedThumbprint = "00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff"
	assert.Error(t, requestThrough(t, server, pinned))
}

func TestVerifyDisabledSkipsChainValidation(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Self-signed server certificate: fails with verification on, passes with
	// verification off.
	assert.Error(t, requestThrough(t, server, tlspolicy.Policy{Verify: true}))
	assert.NoError(t, requestThrough(t, server, tlspolicy.Policy{Verify: false}))
}
