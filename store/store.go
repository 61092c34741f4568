package store

import (
	"context"
	"log/slog"

	"github.com/hrygo/voxcache/internal/profile"
)

// Store namespaces document keys and logs storage failures on top of a Driver.
type Store struct {
	profile *profile.Profile
	driver  Driver
	logger  *slog.Logger
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		logger:  slog.Default().With("component", "store", "driver", profile.Driver),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) key(key string) string {
	return s.profile.KeyPrefix + key
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.driver.Read(ctx, s.key(key))
	if err != nil && !IsNotFound(err) {
		s.logger.Warn("read failed", "key", key, "error", err)
	}
	return data, err
}

func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	if err := s.driver.Write(ctx, s.key(key), data); err != nil {
		s.logger.Warn("write failed", "key", key, "bytes", len(data), "error", err)
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.driver.Delete(ctx, s.key(key)); err != nil {
		s.logger.Warn("delete failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.driver.Close()
}
