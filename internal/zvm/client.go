// Package zvm provides the authenticated gateway to the ZVM REST API. It
// selects the credential header scheme from the active token, applies the
// run's TLS policy and timeout to every call, retries transient failures with
// bounded backoff, and distinguishes missing endpoints from transport errors.
package zvm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ALastoff/LicenseView/internal/auth"
	"github.com/ALastoff/LicenseView/internal/models"
)

const (
	// maxAttempts bounds the retry loop for transport and 5xx failures.
	maxAttempts = 3
	// backoffBase is the first retry delay; it doubles per attempt.
	backoffBase = 500 * time.Millisecond
)

// RenewFunc restores a usable token after a 401: refresh for modern tokens,
// a full re-negotiation for legacy sessions. The renewed state must be written
// into the passed TokenContext.
type RenewFunc func(ctx context.Context, token *auth.TokenContext) error

// Client issues authenticated requests against one ZVM instance. The token's
// kind fixes the credential header scheme for every call in the run.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      *auth.TokenContext
	renew      RenewFunc
	logger     *logrus.Logger
	sleep      func(time.Duration)
}

// NewClient creates a ZVM API client.
//
// Parameters:
//   - baseURL: ZVM base URL without trailing slash
//   - token: active token context produced by the negotiator
//   - transport: transport carrying the run's TLS policy
//   - timeout: per-request timeout
//   - renew: token recovery callback for 401 responses; nil disables recovery
//   - logger: structured logger for API operations
func NewClient(
	baseURL string,
	token *auth.TokenContext,
	transport http.RoundTripper,
	timeout time.Duration,
	renew RenewFunc,
	logger *logrus.Logger,
) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		token:  token,
		renew:  renew,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Call executes one API request and returns the raw response body. Transport
// failures and 5xx responses are retried up to maxAttempts with exponential
// backoff; a 401 triggers the renew callback and a single retry; a 404 is
// reported as *models.EndpointUnavailableError for graceful degradation.
func (c *Client) Call(
	ctx context.Context,
	method string,
	path string,
	body interface{},
) (json.RawMessage, error) {
	raw, err := c.callOnce(ctx, method, path, body)
	if err == nil {
		return raw, nil
	}

	// A 401 means the token expired mid-run: recover once, then retry once.
	if _, ok := err.(*unauthorizedError); ok && c.renew != nil {
		c.logger.Debug("Received 401 Unauthorized, renewing token and retrying")
		if renewErr := c.renew(ctx, c.token); renewErr != nil {
			return nil, fmt.Errorf("token renewal after 401 failed: %w", renewErr)
		}
		return c.callOnce(ctx, method, path, body)
	}

	return nil, err
}

// unauthorizedError is an internal marker for 401 responses; it never leaves
// the package, Call converts it into renewal or a terminal error.
type unauthorizedError struct {
	path string
}

func (e *unauthorizedError) Error() string {
	return fmt.Sprintf("request to %s was rejected as unauthorized", e.path)
}

// callOnce runs the bounded retry loop for one logical request.
func (c *Client) callOnce(
	ctx context.Context,
	method string,
	path string,
	body interface{},
) (json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffBase << (attempt - 2)
			c.logger.WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request after transient failure")
			c.sleep(delay)
		}

		raw, retryable, err := c.do(ctx, method, path, body)
		if err == nil {
			return raw, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// do executes a single HTTP exchange. The second return value reports whether
// the failure is retryable (transport error or 5xx).
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
) (json.RawMessage, bool, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	c.token.Authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("Sending ZVM API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, &models.TransientNetworkError{Cause: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
		"status": resp.StatusCode,
	}).Debug("Received ZVM API response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, &unauthorizedError{path: path}
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, &models.EndpointUnavailableError{Path: path}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("ZVM API returned status %d for %s", resp.StatusCode, path)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, false, fmt.Errorf("ZVM API returned status %d for %s", resp.StatusCode, path)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &models.TransientNetworkError{Cause: err}
	}

	return raw, false, nil
}
