package task_runner

import (
	"context"
	"fmt"
	"time"

	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/redislib"
)

const lockExpiration = 5 * time.Minute
const lockExtendInterval = 2 * time.Minute

// lockForExport makes sure only one process runs a given job id at a time. The lock is kept
// alive until the returned function is called. Without a locker, no lock is taken.
func lockForExport(ctx rcontext.RequestContext, locker Locker, jobId string) (func(), error) {
	var mutex redislib.Mutex
	if locker != nil {
		mutex = locker.NewExportMutex(jobId, lockExpiration)
	}
	if mutex == nil {
		ctx.Log.Debug("Continuing export without lock: redis is not configured")
		return func() {}, nil
	}

	if err := mutex.LockContext(ctx.Context); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", common.ErrJobAlreadyRunning, err)
	}
	ctx.Log.Debugf("Lock acquired until %s", mutex.Until().UTC())

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(lockExtendInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := mutex.ExtendContext(context.Background()); !ok || err != nil {
					ctx.Log.Warn("Failed to extend export lock: ", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		ctx.Log.Debug("Unlocking export lock")
		// We use a background context here to prevent a cancelled context from keeping the lock open
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			ctx.Log.Warn("Did not get quorum on unlock: ", err)
		}
	}, nil
}
