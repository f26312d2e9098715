// Package identity resolves a player's UUID from their username
// (§4.D): a primary provider with retries, a secondary fallback, and
// a short-TTL cache so a burst of reconnects from the same player
// doesn't repeatedly hit the upstream identity service.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/codingbear/mcrouter/internal/httpclient"
	"github.com/codingbear/mcrouter/internal/logging"
)

var log = logging.New("identity")

// Unresolved is returned when no provider can resolve a username to a
// UUID.
const Unresolved = "UNRESOLVED"

const (
	maxRetries  = 3
	retryDelay  = time.Second
)

// mojangProfile mirrors the relevant field of Mojang's
// profiles/minecraft response.
type mojangProfile struct {
	ID string `json:"id"`
}

// playerdbResponse mirrors playerdb.co's response shape.
type playerdbResponse struct {
	Data struct {
		Player struct {
			RawID string `json:"raw_id"`
		} `json:"player"`
	} `json:"data"`
}

// jsonGetter is the subset of *httpclient.Client a Resolver needs;
// tests substitute a fake to avoid real network calls.
type jsonGetter interface {
	GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) (int, error)
}

// Resolver resolves usernames to dash-stripped lowercase-hex UUIDs.
type Resolver struct {
	http       jsonGetter
	cache      *cache.Cache
	primaryURL string
	secondary  string
	timeout    time.Duration
}

// New builds a Resolver. primaryURL and secondaryURL are the base
// endpoints for the primary and fallback identity providers; ttl
// bounds how long a resolved UUID is cached.
func New(primaryURL, secondaryURL string, timeout, ttl time.Duration) *Resolver {
	return NewWithClient(httpclient.New(), primaryURL, secondaryURL, timeout, ttl)
}

// NewWithClient builds a Resolver around an explicit jsonGetter,
// letting tests substitute a fake HTTP layer.
func NewWithClient(client jsonGetter, primaryURL, secondaryURL string, timeout, ttl time.Duration) *Resolver {
	return &Resolver{
		http:       client,
		cache:      cache.New(ttl, 2*ttl),
		primaryURL: primaryURL,
		secondary:  secondaryURL,
		timeout:    timeout,
	}
}

// Resolve returns the dash-stripped lowercase-hex UUID for username,
// or Unresolved if no provider could resolve it. An empty username
// (status ping) short-circuits to Unresolved without any network
// call, per §4.D.
func (r *Resolver) Resolve(ctx context.Context, username string) string {
	if username == "" {
		return Unresolved
	}
	if cached, ok := r.cache.Get(username); ok {
		return cached.(string)
	}

	uuid := r.resolveWithRetries(ctx, username)
	r.cache.Set(username, uuid, cache.DefaultExpiration)
	return uuid
}

func (r *Resolver) resolveWithRetries(ctx context.Context, username string) string {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Unresolved
			case <-time.After(retryDelay):
			}
		}
		if uuid, ok := r.queryPrimary(ctx, username); ok {
			return uuid
		}
	}

	log.Info("primary identity provider exhausted for %q, trying fallback", username)
	if uuid, ok := r.querySecondary(ctx, username); ok {
		return uuid
	}
	return Unresolved
}

func (r *Resolver) queryPrimary(ctx context.Context, username string) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var profile mojangProfile
	url := fmt.Sprintf("%s/%s", r.primaryURL, username)
	if _, err := r.http.GetJSON(cctx, url, nil, &profile); err != nil {
		log.Debug("primary lookup for %q failed: %v", username, err)
		return "", false
	}
	uuid := normalizeUUID(profile.ID)
	if uuid == "" {
		return "", false
	}
	return uuid, true
}

func (r *Resolver) querySecondary(ctx context.Context, username string) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var body playerdbResponse
	url := fmt.Sprintf("%s/%s", r.secondary, username)
	if _, err := r.http.GetJSON(cctx, url, nil, &body); err != nil {
		log.Debug("secondary lookup for %q failed: %v", username, err)
		return "", false
	}
	uuid := normalizeUUID(body.Data.Player.RawID)
	if uuid == "" {
		return "", false
	}
	return uuid, true
}

// normalizeUUID strips dashes and lowercases, returning "" if the
// result isn't a plausible 32-char hex UUID.
func normalizeUUID(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "-", ""))
	if len(s) != 32 {
		return ""
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return ""
		}
	}
	return s
}
