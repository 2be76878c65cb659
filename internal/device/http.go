package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
)

// HTTPNotifier calls GET /setColor?r=&g=&b= on the device.
type HTTPNotifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPNotifier creates a notifier for the device at address.
// address may be a bare host[:port] or a full http:// URL.
func NewHTTPNotifier(address string, timeout time.Duration) *HTTPNotifier {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return &HTTPNotifier{
		baseURL:    strings.TrimRight(address, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the request URL used for c.
func (n *HTTPNotifier) URL(c color.Color) string {
	q := url.Values{}
	q.Set("r", strconv.Itoa(int(c.R)))
	q.Set("g", strconv.Itoa(int(c.G)))
	q.Set("b", strconv.Itoa(int(c.B)))
	return fmt.Sprintf("%s/setColor?%s", n.baseURL, q.Encode())
}

// Notify fires the request in the background and returns immediately.
func (n *HTTPNotifier) Notify(c color.Color) {
	target := n.URL(c)
	go func() {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, target, nil)
		if err != nil {
			log.Debug().Err(err).Str("url", target).Msg("Device notify request invalid")
			return
		}
		resp, err := n.httpClient.Do(req)
		if err != nil {
			log.Debug().Err(err).Str("url", target).Msg("Device unreachable, dropping color")
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		log.Debug().Str("color", c.Hex()).Int("status", resp.StatusCode).Msg("Device notified")
	}()
}

// Close closes idle connections
func (n *HTTPNotifier) Close() {
	n.httpClient.CloseIdleConnections()
}
