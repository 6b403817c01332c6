package fetch

import (
	"context"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/air-gapped/embedmark/internal/cache"
	"github.com/air-gapped/embedmark/internal/logging"
	"github.com/air-gapped/embedmark/internal/oembed"
)

// CachedClient wraps a Client with an in-memory cache of oEmbed payloads.
// Concurrent requests for the same key share one upstream fetch.
type CachedClient struct {
	client *Client
	cache  *cache.Cache
	group  singleflight.Group
	onLook func(cache.Status)
}

// CachedOption configures a CachedClient.
type CachedOption func(*CachedClient)

// WithStatusHook registers fn to be called with the outcome of every cache
// lookup.
func WithStatusHook(fn func(cache.Status)) CachedOption {
	return func(cc *CachedClient) { cc.onLook = fn }
}

// NewCachedClient creates a fetch client with caching.
func NewCachedClient(client *Client, c *cache.Cache, opts ...CachedOption) *CachedClient {
	cc := &CachedClient{client: client, cache: c, onLook: func(cache.Status) {}}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// cacheKey is the expanded endpoint, or the page URL for discovery.
func cacheKey(req oembed.Request) string {
	if req.Discover {
		return "discover:" + req.URL
	}
	return req.Endpoint
}

// FetchOembed implements oembed.Fetcher.
//
// A fresh entry is served directly. An expired entry is revalidated with a
// conditional GET; a 304 refreshes its TTL, and an upstream failure serves
// the stale body. Misses fetch and store.
func (cc *CachedClient) FetchOembed(ctx context.Context, req oembed.Request) ([]byte, error) {
	key := cacheKey(req)

	v, err, _ := cc.group.Do(key, func() (any, error) {
		return cc.lookup(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (cc *CachedClient) lookup(ctx context.Context, key string, req oembed.Request) ([]byte, error) {
	log := logging.FromContext(ctx)
	entry, status := cc.cache.Get(key)

	switch status {
	case cache.StatusHit:
		cc.onLook(cache.StatusHit)
		return entry.Body, nil

	case cache.StatusExpired:
		body, revalidated, err := cc.revalidate(ctx, req, entry)
		if err != nil {
			log.Warn("serving stale oembed response", "url", req.URL, "error", err)
			cc.onLook(cache.StatusStale)
			return entry.Body, nil
		}
		if revalidated {
			cc.cache.RefreshTTL(key)
			cc.onLook(cache.StatusRevalidated)
			return entry.Body, nil
		}
		cc.onLook(cache.StatusExpired)
		return body, nil

	default:
		cc.onLook(cache.StatusMiss)
		if req.Discover {
			body, err := cc.client.FetchOembed(ctx, req)
			if err != nil {
				return nil, err
			}
			cc.cache.Put(key, cache.Entry{Body: body})
			return body, nil
		}

		result, err := cc.client.Fetch(ctx, req.Endpoint, "", "")
		if err != nil {
			return nil, err
		}
		cc.store(key, result)
		return result.Body, nil
	}
}

// revalidate refreshes an expired entry. It reports true when the upstream
// confirmed the cached body is still current.
func (cc *CachedClient) revalidate(ctx context.Context, req oembed.Request, entry cache.Entry) ([]byte, bool, error) {
	key := cacheKey(req)

	if req.Discover {
		body, err := cc.client.FetchOembed(ctx, req)
		if err != nil {
			return nil, false, err
		}
		cc.cache.Put(key, cache.Entry{Body: body})
		return body, false, nil
	}

	result, err := cc.client.Fetch(ctx, req.Endpoint, entry.ETag, entry.LastModified)
	if err != nil {
		return nil, false, err
	}
	if result.StatusCode == http.StatusNotModified {
		return nil, true, nil
	}
	cc.store(key, result)
	return result.Body, false, nil
}

func (cc *CachedClient) store(key string, result *Result) {
	cc.cache.Put(key, cache.Entry{
		Body:         result.Body,
		ETag:         result.ETag,
		LastModified: result.LastModified,
	})
}

// Cache returns the underlying cache.
func (cc *CachedClient) Cache() *cache.Cache {
	return cc.cache
}
