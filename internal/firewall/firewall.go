// Package firewall implements the per-domain deny-list client (§4.E):
// fetch rules from the manager, cache them briefly, and evaluate a
// session's ip/username/uuid against them. Network failure is
// non-fatal: the session proceeds as if no rules matched.
package firewall

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/codingbear/mcrouter/internal/httpclient"
	"github.com/codingbear/mcrouter/internal/logging"
)

var log = logging.New("firewall")

// Rule types, matched exactly against the session's fields.
const (
	RuleIPBan       = "ipBan"
	RuleUsernameBan = "usernameBan"
	RuleUUIDBan     = "uuidBan"
)

// Rule is one deny entry returned by the manager for a domain.
type Rule struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type rulesResponse struct {
	Rules []Rule `json:"rules"`
}

// jsonGetter is the subset of *httpclient.Client a Client needs;
// tests substitute a fake to avoid real network calls.
type jsonGetter interface {
	GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) (int, error)
}

// Client fetches and evaluates per-domain firewall rules.
type Client struct {
	http          jsonGetter
	cache         *cache.Cache
	managerAddr   string
	managerAPIKey string
	timeout       time.Duration
}

// New builds a Client. If managerAddr or managerAPIKey is empty the
// firewall is disabled and Authorise always allows.
func New(managerAddr, managerAPIKey string, timeout, ttl time.Duration) *Client {
	return NewWithClient(httpclient.New(), managerAddr, managerAPIKey, timeout, ttl)
}

// NewWithClient builds a Client around an explicit jsonGetter,
// letting tests substitute a fake HTTP layer.
func NewWithClient(client jsonGetter, managerAddr, managerAPIKey string, timeout, ttl time.Duration) *Client {
	return &Client{
		http:          client,
		cache:         cache.New(ttl, 2*ttl),
		managerAddr:   managerAddr,
		managerAPIKey: managerAPIKey,
		timeout:       timeout,
	}
}

// Enabled reports whether both a manager address and API key are
// configured, matching reporter.Reporter's gating.
func (c *Client) Enabled() bool {
	return c.managerAddr != "" && c.managerAPIKey != ""
}

// Authorise fetches the deny rules for domain (cached) and reports
// whether the session identified by ip/username/uuid is blocked.
func (c *Client) Authorise(ctx context.Context, domain, ip, username, uuid string) (blocked bool) {
	if !c.Enabled() {
		return false
	}
	rules := c.rulesFor(ctx, domain)
	for _, r := range rules {
		switch r.Type {
		case RuleIPBan:
			if r.Value == ip {
				return true
			}
		case RuleUsernameBan:
			if username != "" && r.Value == username {
				return true
			}
		case RuleUUIDBan:
			if uuid != "" && r.Value == uuid {
				return true
			}
		}
	}
	return false
}

func (c *Client) rulesFor(ctx context.Context, domain string) []Rule {
	if cached, ok := c.cache.Get(domain); ok {
		return cached.([]Rule)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp rulesResponse
	url := fmt.Sprintf("%s/firewall/%s", c.managerAddr, domain)
	headers := map[string]string{"X-API-Key": c.managerAPIKey}
	if _, err := c.http.GetJSON(cctx, url, headers, &resp); err != nil {
		log.Error("fetch rules for %q failed, proceeding as if unblocked: %v", domain, err)
		return nil
	}

	c.cache.Set(domain, resp.Rules, cache.DefaultExpiration)
	return resp.Rules
}
