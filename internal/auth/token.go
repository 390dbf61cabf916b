// Package auth negotiates authentication against the ZVM API across the
// modern OpenID-Connect password grant and the legacy session scheme, and
// owns the resulting token state for the duration of one run.
package auth

import (
	"fmt"
	"net/http"
	"time"
)

// Kind identifies the credential header scheme a token requires.
type Kind string

// Token kinds. The kind chosen at negotiation time determines the credential
// header for every subsequent API call in the same run; kinds are never mixed
// mid-run.
const (
	KindBearerOIDC    Kind = "bearer_oidc"
	KindLegacySession Kind = "legacy_session"
)

// Protocol identifies which authentication protocol produced a token.
type Protocol string

// Supported authentication protocols.
const (
	ProtocolModern Protocol = "modern"
	ProtocolLegacy Protocol = "legacy"
)

// SessionHeader is the request and response header carrying legacy session
// identifiers.
const SessionHeader = "X-Zerto-Session"

// TokenContext is the live credential state used to authorize API calls for
// one run. It is owned exclusively by the caller of the negotiator and is
// mutated in place only by Refresh, which swaps all fields atomically.
type TokenContext struct {
	// Token is the access token or session identifier.
	Token string
	// Kind selects the credential header scheme.
	Kind Kind
	// RefreshToken enables the modern refresh grant; empty for legacy sessions.
	RefreshToken string
	// IssuedAt is when the token was obtained.
	IssuedAt time.Time
	// ExpiresAt is the known expiry instant. Nil means unknown; legacy session
	// lifetimes are not reported by the API, so legacy tokens always carry nil
	// and callers should re-authenticate on 401 instead of guessing.
	ExpiresAt *time.Time
	// Protocol records which negotiation path produced this token.
	Protocol Protocol

	// clientID is the client identity that won the modern grant; the refresh
	// grant must present the same identity.
	clientID string
}

// Expired reports whether the token's known expiry has passed. Tokens with
// unknown expiry are never reported as expired; a 401 from the API is the
// authoritative signal for those.
func (t *TokenContext) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Authorize sets the credential header appropriate for this token's kind on
// the given request.
func (t *TokenContext) Authorize(req *http.Request) {
	switch t.Kind {
	case KindLegacySession:
		req.Header.Set(SessionHeader, t.Token)
	default:
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.Token))
	}
}

// Credentials holds the secrets used during negotiation. Credentials are never
// logged or serialized.
type Credentials struct {
	Username string
	Password string
	// ClientIDCandidates are tried in declared order for the modern grant.
	ClientIDCandidates []string
	// ClientSecret is optional; public OIDC clients omit it.
	ClientSecret string
}

// String implements fmt.Stringer with a redacted representation so accidental
// formatting never leaks secrets.
func (Credentials) String() string { return "credentials(redacted)" }

// GoString implements fmt.GoStringer with a redacted representation.
func (Credentials) GoString() string { return "auth.Credentials{redacted}" }
