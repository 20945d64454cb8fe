// Package jwks caches JSON Web Key Sets per issuer. Keys are fetched from
// the issuer's /.well-known/jwks.json endpoint and held for a TTL so that
// per-request token verification does not hit the network.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// ErrFetchFailed indicates the key set could not be retrieved or decoded.
// A failed refresh never evicts a previously cached entry.
var ErrFetchFailed = errors.New("jwks: fetch failed")

const (
	// DefaultTTL is how long a fetched key set stays fresh.
	DefaultTTL = time.Hour
	// defaultFetchTimeout bounds a single JWKS fetch.
	defaultFetchTimeout = 10 * time.Second
)

type entry struct {
	set       *jose.JSONWebKeySet
	fetchedAt time.Time
}

// Cache is a TTL cache of issuer key sets. All access is serialized by a
// single mutex, so concurrent callers for the same issuer never race to
// fetch.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	ttl    time.Duration
	client *http.Client
	now    func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides the entry freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) { c.client = client }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache builds an empty cache with the default TTL and fetch timeout.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		client:  &http.Client{Timeout: defaultFetchTimeout},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the issuer's key set, fetching it if the cached entry is
// missing or stale. A fetch failure surfaces ErrFetchFailed and leaves any
// stale entry in place for the next attempt.
func (c *Cache) Get(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[issuer]; ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.set, nil
	}

	set, err := c.fetch(ctx, issuer)
	if err != nil {
		return nil, err
	}

	c.entries[issuer] = entry{set: set, fetchedAt: c.now()}
	return set, nil
}

func (c *Cache) fetch(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error) {
	url := strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %v", ErrFetchFailed, url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrFetchFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetchFailed, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetchFailed, url, err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrFetchFailed, url, err)
	}

	return &set, nil
}

// Remove evicts a single issuer's entry.
func (c *Cache) Remove(issuer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, issuer)
}

// Clear evicts all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of cached issuers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
