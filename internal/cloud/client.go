// Package cloud talks to the IoT cloud that stores the lamp color as a
// property of a registered thing.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lampd/internal/color"
)

// Client provides authenticated access to thing properties.
// The bearer token is fetched on first use and reused for the session.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.Mutex
	token Token
}

// NewClient creates a new property client.
// rateLimitRPS caps outgoing requests; 0 means the default of 1 request per second.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, rateLimitRPS float64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if rateLimitRPS <= 0 {
		rateLimitRPS = 1.0
	}
	burst := int(rateLimitRPS)
	if burst < 2 {
		burst = 2
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) propertyURL(thingID, propertyID string) string {
	return fmt.Sprintf("%s/v2/things/%s/properties/%s", c.baseURL, url.PathEscape(thingID), url.PathEscape(propertyID))
}

// bearer returns the memoized token, fetching it if none is held.
// A failed fetch is not memoized.
func (c *Client) bearer(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed getting an access token")
		return "", err
	}
	log.Debug().Msg("Acquired cloud access token")
	c.token = token
	return token, nil
}

// forget drops the memoized token if it is still the one that was rejected.
func (c *Client) forget(rejected Token) {
	c.mu.Lock()
	if c.token == rejected {
		c.token = ""
	}
	c.mu.Unlock()
}

// do performs an authenticated request. The caller closes the body.
func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+string(token))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Expired or revoked; the next call exchanges credentials again.
		c.forget(token)
	}
	return resp, nil
}

// ReadProperty returns the last value of a property parsed as a color.
func (c *Client) ReadProperty(ctx context.Context, thingID, propertyID string) (color.Color, error) {
	resp, err := c.do(ctx, http.MethodGet, c.propertyURL(thingID, propertyID), nil)
	if err != nil {
		return color.Color{}, &ReadError{Thing: thingID, Property: propertyID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return color.Color{}, &ReadError{
			Thing:      thingID,
			Property:   propertyID,
			StatusCode: resp.StatusCode,
			Err:        errors.New(readSnippet(resp.Body)),
		}
	}

	var payload struct {
		LastValue json.RawMessage `json:"last_value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return color.Color{}, &ReadError{Thing: thingID, Property: propertyID, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode property: %w", err)}
	}

	var value string
	if err := json.Unmarshal(payload.LastValue, &value); err != nil {
		return color.Color{}, &ParseError{Payload: string(payload.LastValue), Err: fmt.Errorf("last_value is not a string: %w", err)}
	}

	parsed, err := color.ParseDecimal(value)
	if err != nil {
		return color.Color{}, &ParseError{Payload: value, Err: err}
	}
	return parsed, nil
}

// WriteProperty publishes a new property value on behalf of a device.
func (c *Client) WriteProperty(ctx context.Context, thingID, propertyID, deviceID string, value color.Color) error {
	body, err := json.Marshal(struct {
		DeviceID string `json:"device_id"`
		Value    string `json:"value"`
	}{
		DeviceID: deviceID,
		Value:    value.Decimal(),
	})
	if err != nil {
		return &WriteError{Thing: thingID, Property: propertyID, Err: err}
	}

	resp, err := c.do(ctx, http.MethodPut, c.propertyURL(thingID, propertyID)+"/publish", body)
	if err != nil {
		return &WriteError{Thing: thingID, Property: propertyID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &WriteError{
			Thing:      thingID,
			Property:   propertyID,
			StatusCode: resp.StatusCode,
			Err:        errors.New(readSnippet(resp.Body)),
		}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func readSnippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 512))
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty response"
	}
	return s
}

// Property binds a client to one (thing, property, device) triple.
type Property struct {
	client     *Client
	thingID    string
	propertyID string
	deviceID   string
}

// NewProperty creates a property handle.
func NewProperty(client *Client, thingID, propertyID, deviceID string) *Property {
	return &Property{
		client:     client,
		thingID:    thingID,
		propertyID: propertyID,
		deviceID:   deviceID,
	}
}

// Read returns the current cloud color.
func (p *Property) Read(ctx context.Context) (color.Color, error) {
	return p.client.ReadProperty(ctx, p.thingID, p.propertyID)
}

// Write publishes a new cloud color.
func (p *Property) Write(ctx context.Context, value color.Color) error {
	return p.client.WriteProperty(ctx, p.thingID, p.propertyID, p.deviceID, value)
}
