package redislib

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/rcontext"
)

func TestConnectDisabled(t *testing.T) {
	assert.Nil(t, Connect(config.RedisConfig{Enabled: false, Shards: []config.RedisShardConfig{{Name: "a", Address: "localhost:6379"}}}))
	assert.Nil(t, Connect(config.RedisConfig{Enabled: true}))
}

func TestNilConnectionIsNoop(t *testing.T) {
	var c *Connection
	ctx := rcontext.Initial()

	assert.NoError(t, c.Ping(context.Background()))
	assert.Nil(t, c.NewExportMutex("job", time.Minute))
	assert.NoError(t, c.CachePresignedURL(ctx, "bucket", "key", "https://example.org", time.Minute))
	url, err := c.CachedPresignedURL(ctx, "bucket", "key")
	assert.NoError(t, err)
	assert.Empty(t, url)
	assert.NoError(t, c.ForgetPresignedURL(ctx, "bucket", "key"))
	c.Close()
}

func TestConnectBuildsClientsPerShard(t *testing.T) {
	c := Connect(config.RedisConfig{
		Enabled:  true,
		Password: "secret",
		Shards: []config.RedisShardConfig{
			{Name: "first", Address: "localhost:6379"},
			{Name: "second", Address: "localhost:6380"},
		},
	})
	require.NotNil(t, c)
	defer c.Close()

	assert.Len(t, c.clients, 2)
	assert.Equal(t, "secret", c.clients[0].Options().Password)
	assert.Equal(t, defaultDialTimeout, c.clients[1].Options().DialTimeout)
	assert.NotNil(t, c.NewExportMutex("job", time.Minute))
}

func TestPresignKey(t *testing.T) {
	assert.Equal(t, "presign:media/exports/a.zip", presignKey("media", "exports/a.zip"))
}
