package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/ALastoff/LicenseView/internal/models"
)

// Mode restricts which protocols the negotiator may attempt.
type Mode string

// Negotiation modes. ModeAuto tries the modern grant first and falls back to
// the legacy session scheme; the explicit modes disable the other protocol.
const (
	ModeAuto   Mode = "auto"
	ModeModern Mode = "modern"
	ModeLegacy Mode = "legacy"
)

// tokenResponse represents the OIDC token endpoint response for both the
// password and refresh grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// Negotiator produces a TokenContext by trying the configured authentication
// protocols in order. One Negotiator serves one run; it performs no retries
// itself; retry policy belongs to the caller.
type Negotiator struct {
	baseURL    string
	realm      string
	mode       Mode
	creds      Credentials
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewNegotiator creates a Negotiator for the given ZVM base URL.
//
// Parameters:
//   - baseURL: ZVM base URL without trailing slash (e.g. "https://zvm.example.com")
//   - realm: OIDC realm name for the modern token endpoint
//   - mode: which protocols to attempt
//   - creds: credentials and client identity candidates
//   - transport: transport carrying the run's TLS policy
//   - timeout: per-request timeout
//   - logger: structured logger for negotiation progress
func NewNegotiator(
	baseURL string,
	realm string,
	mode Mode,
	creds Credentials,
	transport http.RoundTripper,
	timeout time.Duration,
	logger *logrus.Logger,
) *Negotiator {
	if mode == "" {
		mode = ModeAuto
	}
	return &Negotiator{
		baseURL: strings.TrimRight(baseURL, "/"),
		realm:   realm,
		mode:    mode,
		creds:   creds,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger,
	}
}

// tokenURL returns the modern OIDC token endpoint.
func (n *Negotiator) tokenURL() string {
	return fmt.Sprintf("%s/auth/realms/%s/protocol/openid-connect/token", n.baseURL, n.realm)
}

// sessionURL returns the legacy session-creation endpoint.
func (n *Negotiator) sessionURL() string {
	return n.baseURL + "/v1/session/add"
}

// Negotiate tries the enabled protocols in order and returns the token for
// the first success. When every attempt fails, the returned error is a
// *models.AuthenticationError carrying the last cause from each protocol.
func (n *Negotiator) Negotiate(ctx context.Context) (*TokenContext, error) {
	var modernErr, legacyErr error

	if n.mode != ModeLegacy {
		for _, clientID := range n.creds.ClientIDCandidates {
			token, err := n.passwordGrant(ctx, clientID)
			if err == nil {
				n.logger.WithFields(logrus.Fields{
					"protocol":  ProtocolModern,
					"client_id": clientID,
				}).Info("Authenticated via OpenID-Connect password grant")
				return token, nil
			}
			n.logger.WithFields(logrus.Fields{
				"client_id": clientID,
				"error":     err,
			}).Debug("Modern grant attempt failed, trying next candidate")
			modernErr = err
		}
		if modernErr == nil && len(n.creds.ClientIDCandidates) == 0 {
			modernErr = errors.New("no client identity candidates configured")
		}
	}

	if n.mode != ModeModern {
		token, err := n.legacySession(ctx)
		if err == nil {
			n.logger.WithField("protocol", ProtocolLegacy).
				Info("Authenticated via legacy session")
			return token, nil
		}
		n.logger.WithField("error", err).Debug("Legacy session attempt failed")
		legacyErr = err
	}

	return nil, &models.AuthenticationError{
		ModernCause: modernErr,
		LegacyCause: legacyErr,
	}
}

// Refresh exchanges the token's refresh token for a new access/refresh pair
// and swaps the TokenContext fields atomically: on any failure the existing
// token state is left untouched. Refresh applies only to modern tokens;
// legacy sessions require a brand-new negotiation.
func (n *Negotiator) Refresh(ctx context.Context, token *TokenContext) error {
	if token.Protocol != ProtocolModern {
		return errors.New("refresh is not supported for legacy sessions; re-negotiate instead")
	}
	if token.RefreshToken == "" {
		return errors.New("token has no refresh token")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", token.clientID)
	if n.creds.ClientSecret != "" {
		form.Set("client_secret", n.creds.ClientSecret)
	}

	resp, err := n.postForm(ctx, n.tokenURL(), form)
	if err != nil {
		return fmt.Errorf("refresh grant failed: %w", err)
	}

	renewed := n.buildModernToken(resp, token.clientID)
	*token = *renewed

	n.logger.WithField("expires_at", token.ExpiresAt).Debug("Access token refreshed")
	return nil
}

// passwordGrant performs one password-grant exchange for the given client
// identity.
func (n *Negotiator) passwordGrant(ctx context.Context, clientID string) (*TokenContext, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", clientID)
	form.Set("username", n.creds.Username)
	form.Set("password", n.creds.Password)
	form.Set("scope", "openid")
	if n.creds.ClientSecret != "" {
		form.Set("client_secret", n.creds.ClientSecret)
	}

	resp, err := n.postForm(ctx, n.tokenURL(), form)
	if err != nil {
		return nil, err
	}

	return n.buildModernToken(resp, clientID), nil
}

// postForm submits a form-encoded token request and decodes the response.
func (n *Negotiator) postForm(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		endpoint,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransientNetworkError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", decodeErr)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.New("no access_token in response")
	}

	return &tokenResp, nil
}

// buildModernToken assembles a TokenContext from a token endpoint response.
// Expiry comes from expires_in when present, otherwise from the access
// token's exp claim if the token is a parseable JWT.
func (n *Negotiator) buildModernToken(resp *tokenResponse, clientID string) *TokenContext {
	now := time.Now().UTC()

	var expiresAt *time.Time
	if resp.ExpiresIn > 0 {
		t := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
		expiresAt = &t
	} else if exp := claimExpiry(resp.AccessToken); exp != nil {
		expiresAt = exp
	}

	return &TokenContext{
		Token:        resp.AccessToken,
		Kind:         KindBearerOIDC,
		RefreshToken: resp.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		Protocol:     ProtocolModern,
		clientID:     clientID,
	}
}

// claimExpiry extracts the exp claim from a JWT access token without
// verifying its signature. Returns nil when the token is not a JWT or
// carries no expiry.
func claimExpiry(accessToken string) *time.Time {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	exp := claims.ExpiresAt.Time.UTC()
	return &exp
}

// legacySession performs the basic-auth session-creation call. The session
// identifier is returned in a response header, not the body; header lookup is
// case-insensitive per net/http semantics.
func (n *Negotiator) legacySession(ctx context.Context) (*TokenContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.sessionURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	req.SetBasicAuth(n.creds.Username, n.creds.Password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransientNetworkError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session endpoint returned status %d", resp.StatusCode)
	}

	sessionID := resp.Header.Get(SessionHeader)
	if sessionID == "" {
		return nil, errors.New("session identifier header absent from response")
	}

	return &TokenContext{
		Token:    sessionID,
		Kind:     KindLegacySession,
		IssuedAt: time.Now().UTC(),
		// Session lifetime is not reported by the API; leave expiry unknown
		// and rely on 401 handling.
		ExpiresAt: nil,
		Protocol:  ProtocolLegacy,
	}, nil
}
