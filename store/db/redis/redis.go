// Package redis stores documents as plain Redis string values.
package redis

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hrygo/voxcache/store"
)

type Driver struct {
	client *redis.Client
}

// New connects using a redis:// or rediss:// URL and verifies the connection.
func New(ctx context.Context, url string) (*Driver, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse redis url")
	}
	slog.Info("Opening Redis connection", "address", opts.Addr, "db", opts.DB)
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to ping redis at %s", opts.Addr)
	}
	return &Driver{client: client}, nil
}

func (d *Driver) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := d.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s", key)
	}
	return data, nil
}

func (d *Driver) Write(ctx context.Context, key string, data []byte) error {
	if err := d.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}
