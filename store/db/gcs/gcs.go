// Package gcs stores documents as Cloud Storage objects.
package gcs

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"

	"github.com/hrygo/voxcache/store"
)

type Driver struct {
	client *storage.Client
	bucket string
}

// New creates a client using application default credentials.
func New(ctx context.Context, bucket string) (*Driver, error) {
	if bucket == "" {
		return nil, errors.New("bucket required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage client")
	}
	return &Driver{client: client, bucket: bucket}, nil
}

func (d *Driver) object(key string) *storage.ObjectHandle {
	return d.client.Bucket(d.bucket).Object(key)
}

func (d *Driver) Read(ctx context.Context, key string) ([]byte, error) {
	reader, err := d.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open gs://%s/%s", d.bucket, key)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read gs://%s/%s", d.bucket, key)
	}
	return data, nil
}

// Write uploads the whole document; the object is replaced only when the
// upload completes.
func (d *Driver) Write(ctx context.Context, key string, data []byte) error {
	writer := d.object(key).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return errors.Wrapf(err, "failed to write gs://%s/%s", d.bucket, key)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrapf(err, "failed to finalize gs://%s/%s", d.bucket, key)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, key string) error {
	err := d.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Wrapf(err, "failed to delete gs://%s/%s", d.bucket, key)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}
