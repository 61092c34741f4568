package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/voxcache/internal/profile"
	"github.com/hrygo/voxcache/store/db/file"
	"github.com/hrygo/voxcache/store/db/sqlite"
)

func TestNewDBDriver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := NewDBDriver(ctx, &profile.Profile{Data: dir})
	require.NoError(t, err)
	assert.IsType(t, &file.Driver{}, d)

	d, err = NewDBDriver(ctx, &profile.Profile{Data: dir, Driver: "sqlite", DSN: dir + "/cache.db"})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.DB{}, d)
	require.NoError(t, d.Close())

	_, err = NewDBDriver(ctx, &profile.Profile{Driver: "mongodb"})
	assert.Error(t, err)

	_, err = NewDBDriver(ctx, &profile.Profile{Driver: "redis", DSN: "not a url"})
	assert.Error(t, err)
}
