package cloud

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

// Token is an opaque bearer credential.
type Token string

// TokenSource hands out bearer credentials.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// ClientCredentials exchanges a client id and secret for a bearer token
// using the OAuth2 client_credentials grant.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	HTTPClient   *http.Client
}

// Token performs the exchange. Every call hits the identity endpoint;
// memoization is the caller's job.
func (c *ClientCredentials) Token(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("audience", c.Audience)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &AuthError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if payload.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Err: errors.New("response has no access_token")}
	}

	return Token(payload.AccessToken), nil
}

func (c *ClientCredentials) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}
