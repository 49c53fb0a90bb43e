package datastores

import (
	"context"
	"fmt"

	"github.com/t2bot/s3-folder-export/common/config"
)

// Open builds the object store described by the configuration.
func Open(ctx context.Context, ds config.DatastoreConfig) (ObjectStore, error) {
	if ds.BucketName == "" {
		return nil, fmt.Errorf("no bucket configured")
	}
	switch ds.Type {
	case "", "s3":
		return newMinioStore(ds)
	case "aws":
		return newAwsStore(ctx, ds)
	default:
		return nil, fmt.Errorf("unknown datastore type: %s", ds.Type)
	}
}
