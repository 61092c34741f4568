package db

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/voxcache/internal/profile"
	"github.com/hrygo/voxcache/store"
	"github.com/hrygo/voxcache/store/db/file"
	"github.com/hrygo/voxcache/store/db/gcs"
	"github.com/hrygo/voxcache/store/db/postgres"
	"github.com/hrygo/voxcache/store/db/redis"
	"github.com/hrygo/voxcache/store/db/sqlite"
)

// NewDBDriver creates the storage driver selected by profile.Driver.
func NewDBDriver(ctx context.Context, profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "", "file":
		driver, err = file.New(profile.Data)
	case "sqlite":
		driver, err = sqlite.NewDB(ctx, profile)
	case "postgres":
		driver, err = postgres.NewDB(ctx, profile)
	case "redis":
		driver, err = redis.New(ctx, profile.DSN)
	case "gcs":
		driver, err = gcs.New(ctx, profile.Bucket)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s driver", profile.Driver)
	}
	return driver, nil
}
