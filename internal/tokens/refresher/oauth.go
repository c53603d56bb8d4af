package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// credentialStyle selects how client credentials are presented to the
// token endpoint.
type credentialStyle int

const (
	// basicAuthHeader sends client_id:client_secret base64-encoded in an
	// Authorization: Basic header (Schwab).
	basicAuthHeader credentialStyle = iota
	// formBodyCredentials sends client_id and client_secret as form
	// fields (Coinbase).
	formBodyCredentials
)

// oauthRefresher is the shared grant_type=refresh_token implementation.
// Provider constructors differ only in endpoint and credential style.
type oauthRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	style        credentialStyle
	httpClient   *http.Client
}

func newOAuthRefresher(tokenURL, clientID, clientSecret string, style credentialStyle) *oauthRefresher {
	return &oauthRefresher{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		style:        style,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// oauthError is the standard OAuth2 error response body.
type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (r *oauthRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	if r.style == formBodyCredentials {
		data.Set("client_id", r.clientID)
		data.Set("client_secret", r.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Token{}, &TransientFailure{Message: "building token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if r.style == basicAuthHeader {
		req.SetBasicAuth(r.clientID, r.clientSecret)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Token{}, &TransientFailure{Message: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, &TransientFailure{Message: "reading token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Token{}, classifyErrorResponse(resp.StatusCode, body)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Token{}, &TransientFailure{Message: "malformed token response", Err: err}
	}
	if result.AccessToken == "" {
		return Token{}, &TransientFailure{Message: "token response missing access_token"}
	}

	token := Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
		Scope:        result.Scope,
	}
	// Providers that do not rotate omit refresh_token; carry the old one
	// forward so the caller never loses it.
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	return token, nil
}

// classifyErrorResponse maps a non-200 token response onto the failure
// taxonomy. Only a 400/401 with an OAuth error body is treated as hard;
// anything unexpected stays transient so a provider quirk never disables a
// connection.
func classifyErrorResponse(status int, body []byte) error {
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		var oe oauthError
		if err := json.Unmarshal(body, &oe); err == nil && oe.Error != "" {
			msg := oe.Error
			if oe.Description != "" {
				msg = fmt.Sprintf("%s: %s", oe.Error, oe.Description)
			}
			return &HardFailure{Message: msg}
		}
		// A 400/401 whose body is not an OAuth error response (a gateway
		// or WAF error page, say) is not the provider rejecting the
		// token.
	}

	return &TransientFailure{
		Message: fmt.Sprintf("token endpoint returned status %d", status),
		Err:     errors.New(strings.TrimSpace(truncate(string(body), 200))),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
