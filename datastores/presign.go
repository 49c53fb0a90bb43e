package datastores

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/patrickmn/go-cache"
	"github.com/t2bot/s3-folder-export/common/rcontext"
)

// URLCache shares presigned links between exporters. *redislib.Connection implements it.
type URLCache interface {
	CachePresignedURL(ctx rcontext.RequestContext, bucket string, objectKey string, url string, ttl time.Duration) error
	CachedPresignedURL(ctx rcontext.RequestContext, bucket string, objectKey string) (string, error)
	ForgetPresignedURL(ctx rcontext.RequestContext, bucket string, objectKey string) error
}

// PresignCache hands out presigned download URLs, reusing a cached one while it still has
// enough life left in it. Links are kept in process first and in the shared cache (when
// given) second, so other exporters can reuse them too.
type PresignCache struct {
	store    Presigner
	bucket   string
	shared   URLCache
	ttl      time.Duration
	cacheTtl time.Duration
	local    *cache.Cache
}

// NewPresignCache builds a cache for links to objects in bucket. shared may be nil.
func NewPresignCache(store Presigner, bucket string, shared URLCache, ttl time.Duration, cacheTtl time.Duration) *PresignCache {
	if cacheTtl <= 0 || cacheTtl >= ttl {
		cacheTtl = ttl / 2
	}
	return &PresignCache{
		store:    store,
		bucket:   bucket,
		shared:   shared,
		ttl:      ttl,
		cacheTtl: cacheTtl,
		local:    cache.New(cacheTtl, cacheTtl*2),
	}
}

func (c *PresignCache) Get(ctx rcontext.RequestContext, key string) (string, error) {
	if cached, ok := c.local.Get(key); ok {
		return cached.(string), nil
	}

	if c.shared != nil {
		if cached, err := c.shared.CachedPresignedURL(ctx, c.bucket, key); err != nil {
			ctx.Log.Warn("Error reading presigned url cache: ", err)
			sentry.CaptureException(err)
		} else if cached != "" {
			// Whatever is left of the shared entry's life is unknown, so don't hold it locally
			return cached, nil
		}
	}

	url, err := c.store.PresignGet(ctx, key, c.ttl)
	if err != nil {
		return "", err
	}

	c.local.SetDefault(key, url)
	if c.shared != nil {
		if err = c.shared.CachePresignedURL(ctx, c.bucket, key, url, c.cacheTtl); err != nil {
			ctx.Log.Warn("Error caching presigned url: ", err)
			sentry.CaptureException(err)
		}
	}
	return url, nil
}

// Invalidate drops any cached link for the key. Called after a new object is committed there so
// the next link carries the full configured lifetime.
func (c *PresignCache) Invalidate(ctx rcontext.RequestContext, key string) {
	c.local.Delete(key)
	if c.shared == nil {
		return
	}
	if err := c.shared.ForgetPresignedURL(ctx, c.bucket, key); err != nil {
		ctx.Log.Warn("Error clearing presigned url cache: ", err)
		sentry.CaptureException(err)
	}
}
