package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultSkew is how long before its expiry a token stops being handed out.
const DefaultSkew = time.Minute

type CacheConfig struct {
	Logger *slog.Logger
	Skew   time.Duration
}

// Cache holds one access token per scope and refreshes it on demand.
type Cache struct {
	source Exchanger
	skew   time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	tokens *ttlcache.Cache[string, string]
}

var _ TokenSource = &Cache{}

func NewCache(source Exchanger, config CacheConfig) (*Cache, error) {
	if source == nil {
		return nil, ErrExchangerNeeded
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	skew := config.Skew
	if skew <= 0 {
		skew = DefaultSkew
	}

	tokens := ttlcache.New[string, string](
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go tokens.Start()

	return &Cache{
		source: source,
		skew:   skew,
		logger: config.Logger.WithGroup("auth"),
		tokens: tokens,
	}, nil
}

// Token returns the cached token for scope or exchanges a new one.
// Concurrent callers share a single exchange.
func (c *Cache) Token(ctx context.Context, scope string) (string, error) {
	if scope == "" {
		return "", ErrEmptyScope
	}
	if item := c.tokens.Get(scope); item != nil && !item.IsExpired() {
		return item.Value(), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if item := c.tokens.Get(scope); item != nil && !item.IsExpired() {
		return item.Value(), nil
	}

	tok, err := c.source.Exchange(ctx, scope)
	if err != nil {
		c.logger.Error("token exchange failed", "scope", scope, "error", err)
		return "", err
	}

	switch {
	case tok.Expiry.IsZero():
		c.tokens.Set(scope, tok.AccessToken, ttlcache.NoTTL)
	default:
		if ttl := time.Until(tok.Expiry) - c.skew; ttl > 0 {
			c.tokens.Set(scope, tok.AccessToken, ttl)
		}
	}
	c.logger.Debug("token refreshed", "scope", scope, "expiry", tok.Expiry)
	return tok.AccessToken, nil
}

// Invalidate drops the cached token for scope, forcing the next call to
// exchange again.
func (c *Cache) Invalidate(scope string) {
	c.tokens.Delete(scope)
}

// Close stops the expiry goroutine.
func (c *Cache) Close() {
	c.tokens.Stop()
	c.tokens.DeleteAll()
}
