package redislib

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/t2bot/s3-folder-export/common/config"
)

const defaultDialTimeout = 10 * time.Second

// Connection holds the redis shards used for export locks and the presigned url cache. A nil
// *Connection is valid and behaves as if redis were disabled.
type Connection struct {
	ring    *redis.Ring
	rs      *redsync.Redsync
	clients []*redis.Client
}

// Connect prepares clients for every configured shard. Returns nil when redis is disabled.
// Nothing is dialed until first use; see Ping.
func Connect(conf config.RedisConfig) *Connection {
	if !conf.Enabled || len(conf.Shards) == 0 {
		return nil
	}

	dialTimeout := defaultDialTimeout
	if conf.DialTimeoutMillis > 0 {
		dialTimeout = time.Duration(conf.DialTimeoutMillis) * time.Millisecond
	}

	// The ring spreads cache keys over the shards, while locks need a quorum of every shard.
	c := &Connection{clients: make([]*redis.Client, 0, len(conf.Shards))}
	addresses := make(map[string]string)
	pools := make([]rsredis.Pool, 0, len(conf.Shards))
	for _, shard := range conf.Shards {
		addresses[shard.Name] = shard.Address
		client := redis.NewClient(&redis.Options{
			Addr:        shard.Address,
			Password:    conf.Password,
			DB:          conf.DbNum,
			DialTimeout: dialTimeout,
		})
		c.clients = append(c.clients, client)
		pools = append(pools, goredis.NewPool(client))
	}
	c.ring = redis.NewRing(&redis.RingOptions{
		Addrs:       addresses,
		Password:    conf.Password,
		DB:          conf.DbNum,
		DialTimeout: dialTimeout,
	})
	c.rs = redsync.New(pools...)
	return c
}

// Ping checks every shard is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	for _, client := range c.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) Close() {
	if c == nil {
		return
	}
	_ = c.ring.Close()
	for _, client := range c.clients {
		_ = client.Close()
	}
}
