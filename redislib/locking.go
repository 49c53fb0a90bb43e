package redislib

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
)

// Mutex is the part of *redsync.Mutex the export lock uses.
type Mutex interface {
	LockContext(ctx context.Context) error
	ExtendContext(ctx context.Context) (bool, error)
	UnlockContext(ctx context.Context) (bool, error)
	Until() time.Time
}

// NewExportMutex returns the distributed mutex guarding one export job, or nil without redis.
// Locking never retries: a held lock means the job is already running elsewhere.
func (c *Connection) NewExportMutex(jobId string, expiration time.Duration) Mutex {
	if c == nil {
		return nil
	}

	// Lock keys live apart from the presign cache keys.
	return c.rs.NewMutex("mutex-export-"+jobId,
		redsync.WithExpiry(expiration),
		redsync.WithTries(1))
}
