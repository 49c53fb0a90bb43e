package redislib

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/t2bot/s3-folder-export/common/rcontext"
)

const operationTimeout = 20 * time.Second

func presignKey(bucket string, objectKey string) string {
	return "presign:" + bucket + "/" + objectKey
}

// CachePresignedURL remembers a presigned download link for the object until ttl elapses.
func (c *Connection) CachePresignedURL(ctx rcontext.RequestContext, bucket string, objectKey string, url string, ttl time.Duration) error {
	if c == nil {
		return nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx.Context, operationTimeout)
	defer cancel()
	return c.ring.Set(timeoutCtx, presignKey(bucket, objectKey), url, ttl).Err()
}

// CachedPresignedURL returns the cached link, or an empty string when there isn't one.
func (c *Connection) CachedPresignedURL(ctx rcontext.RequestContext, bucket string, objectKey string) (string, error) {
	if c == nil {
		return "", nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx.Context, operationTimeout)
	defer cancel()

	key := presignKey(bucket, objectKey)
	ctx.Log.Debugf("Looking up cached presigned url at %s", key)
	url, err := c.ring.Get(timeoutCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return url, err
}

func (c *Connection) ForgetPresignedURL(ctx rcontext.RequestContext, bucket string, objectKey string) error {
	if c == nil {
		return nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx.Context, operationTimeout)
	defer cancel()
	return c.ring.Del(timeoutCtx, presignKey(bucket, objectKey)).Err()
}
