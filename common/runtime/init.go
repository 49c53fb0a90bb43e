package runtime

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/version"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/redislib"
)

// RunStartupSequence connects to redis and opens the configured datastore. The returned
// connection is nil when redis is disabled. The caller closes it.
func RunStartupSequence(ctx context.Context, conf *config.MainConfig) (datastores.ObjectStore, *redislib.Connection, error) {
	version.Print(true)

	logrus.Info("Preparing redis...")
	redis := redislib.Connect(conf.Redis)
	if redis != nil {
		if err := redis.Ping(ctx); err != nil {
			redis.Close()
			return nil, nil, errors.Wrap(err, "redis is enabled but unreachable")
		}
		logrus.Infof("Redis enabled with %d shard(s)", len(conf.Redis.Shards))
	} else {
		logrus.Info("Redis disabled, exports won't be locked across processes")
	}

	store, err := LoadDatastore(ctx, conf.Datastore)
	if err != nil {
		redis.Close()
		return nil, nil, err
	}
	return store, redis, nil
}

func LoadDatastore(ctx context.Context, ds config.DatastoreConfig) (datastores.ObjectStore, error) {
	logrus.Info("Initializing datastore...")
	store, err := datastores.Open(ctx, ds)
	if err != nil {
		sentry.CaptureException(err)
		return nil, err
	}
	logrus.Info(fmt.Sprintf("\t%s (%s): %s", ds.Type, store.Bucket(), ds.Endpoint))
	return store, nil
}

func SetupSentry(conf config.SentryConfig) error {
	if !conf.Enabled {
		return nil
	}
	logrus.Info("Setting up Sentry for debugging...")
	return sentry.Init(sentry.ClientOptions{
		Dsn:         conf.Dsn,
		Environment: conf.Environment,
		Debug:       conf.Debug,
		Release:     version.Release(),
	})
}
