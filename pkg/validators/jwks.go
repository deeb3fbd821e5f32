package validators

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/unionco/idbridge/pkg/observability"
)

// KeySet fetches and caches the RSA public keys published at a JWKS URL.
// Keys are immutable under a given kid, so cached entries are never
// invalidated individually; a lookup miss triggers a refetch (rate-limited
// by a cooldown) to pick up rotated keys, and RefreshAll can be scheduled
// for periodic refresh on top of that.
//
// KeySet is safe for concurrent use.
type KeySet struct {
	url     string
	client  *http.Client
	cache   *lru.Cache[string, *rsa.PublicKey]
	logger  *observability.Logger
	metrics *observability.Metrics

	// cooldown bounds how often a cache miss may hit the remote endpoint
	cooldown  time.Duration
	fetchMu   sync.Mutex
	lastFetch time.Time
}

// KeySetOptions configures a KeySet.
type KeySetOptions struct {
	// CacheSize bounds the number of cached keys. Defaults to 16.
	CacheSize int
	// MissCooldown is the minimum interval between miss-triggered fetches.
	// Defaults to 30 seconds.
	MissCooldown time.Duration
	// HTTPClient defaults to a client with a 10-second timeout.
	HTTPClient *http.Client
	// Metrics may be nil.
	Metrics *observability.Metrics
}

// NewKeySet creates a key set for the given JWKS URL. No fetch happens
// until the first lookup or RefreshAll call.
func NewKeySet(url string, logger *observability.Logger, opts KeySetOptions) (*KeySet, error) {
	if url == "" {
		return nil, fmt.Errorf("key set URL is required")
	}

	size := opts.CacheSize
	if size <= 0 {
		size = 16
	}
	cache, err := lru.New[string, *rsa.PublicKey](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	cooldown := opts.MissCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &KeySet{
		url:      url,
		client:   client,
		cache:    cache,
		logger:   logger.WithField("component", "keyset"),
		metrics:  opts.Metrics,
		cooldown: cooldown,
	}, nil
}

// Key returns the public key for the kid. A cache miss refetches the whole
// set unless a fetch ran within the cooldown window; a kid absent after a
// fresh fetch is a verification failure for the caller, not an error here.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, bool) {
	if key, ok := ks.cache.Get(kid); ok {
		if ks.metrics != nil {
			ks.metrics.KeyCacheHitsTotal.Inc()
		}
		return key, true
	}
	if ks.metrics != nil {
		ks.metrics.KeyCacheMissesTotal.Inc()
	}

	ks.fetchMu.Lock()
	if time.Since(ks.lastFetch) < ks.cooldown {
		ks.fetchMu.Unlock()
		// Another request refetched recently; the kid is genuinely unknown.
		key, ok := ks.cache.Get(kid)
		return key, ok
	}
	err := ks.fetchLocked(ctx)
	ks.fetchMu.Unlock()

	if err != nil {
		ks.logger.WithError(err).Warn("Failed to refresh signing keys")
		return nil, false
	}

	return ks.cache.Get(kid)
}

// RefreshAll refetches the key set unconditionally. Intended for periodic
// scheduling so rotated-in keys are present before the first token that
// needs them.
func (ks *KeySet) RefreshAll(ctx context.Context) error {
	ks.fetchMu.Lock()
	defer ks.fetchMu.Unlock()
	return ks.fetchLocked(ctx)
}

func (ks *KeySet) fetchLocked(ctx context.Context) error {
	keys, err := ks.fetch(ctx)
	if err != nil {
		if ks.metrics != nil {
			ks.metrics.KeySetFetchesTotal.WithLabelValues("error").Inc()
		}
		return err
	}
	if ks.metrics != nil {
		ks.metrics.KeySetFetchesTotal.WithLabelValues("success").Inc()
	}

	for kid, key := range keys {
		ks.cache.Add(kid, key)
	}
	ks.lastFetch = time.Now()

	ks.logger.WithField("keys", len(keys)).Debug("Refreshed signing key set")
	return nil
}

type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

type jwkEntry struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (ks *KeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key set request: %w", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("key set request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read key set response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse key set JSON: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		key, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			ks.logger.WithError(err).WithField("kid", k.Kid).
				Warn("Skipping malformed signing key")
			continue
		}
		keys[k.Kid] = key
	}
	return keys, nil
}

func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
