// Package httpclient is the shared outbound HTTP plumbing for the
// identity resolver (§4.D), firewall client (§4.E) and manager
// reporter (§4.F): build a raw HTTP/1.1 request, send it through a
// pooled rawhttp sender with a hard per-call deadline, and decode a
// JSON response body when one is expected.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2"
)

// Client wraps a single pooled rawhttp.Sender for reuse across calls.
type Client struct {
	sender *rawhttp.Sender
}

// New returns a ready-to-use Client.
func New() *Client {
	return &Client{sender: rawhttp.NewSender()}
}

// GetJSON issues a GET to rawURL with the given headers and decodes
// the JSON response body into out. A non-2xx status is returned as
// an error carrying the status code.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) (status int, err error) {
	return c.doJSON(ctx, "GET", rawURL, headers, nil, out)
}

// PostJSON issues a POST of body (already JSON-marshalled by the
// caller) to rawURL. The response body is discarded; callers that
// need it should use doJSON directly.
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers map[string]string, body []byte) (status int, err error) {
	return c.doJSON(ctx, "POST", rawURL, headers, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, headers map[string]string, body []byte, out any) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("httpclient: parse url: %w", err)
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return 0, fmt.Errorf("httpclient: bad port %q: %w", port, err)
	}

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	lines := []string{
		fmt.Sprintf("%s %s HTTP/1.1", method, path),
		"Host: " + u.Host,
		"User-Agent: mcrouter/1.0",
		"Accept: application/json",
		"Connection: close",
	}
	for k, v := range headers {
		lines = append(lines, k+": "+v)
	}
	if body != nil {
		lines = append(lines, "Content-Type: application/json")
		lines = append(lines, fmt.Sprintf("Content-Length: %d", len(body)))
	}
	lines = append(lines, "", "")
	req := []byte(strings.Join(lines, "\r\n"))
	if body != nil {
		req = append(req, body...)
	}

	opts := rawhttp.DefaultOptions(u.Scheme, u.Hostname(), portNum)
	resp, err := c.sender.Do(ctx, req, opts)
	if err != nil {
		return 0, fmt.Errorf("httpclient: do: %w", err)
	}
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("httpclient: read body: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, fmt.Errorf("httpclient: decode body: %w", err)
			}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("httpclient: unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
