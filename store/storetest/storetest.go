// Package storetest holds behavior checks shared by every store.Driver.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/voxcache/store"
)

// RunDriverTests exercises read, overwrite and delete semantics.
func RunDriverTests(t *testing.T, d store.Driver) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := d.Read(ctx, "semantic_cache.json")
		assert.True(t, store.IsNotFound(err), "got %v", err)
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, d.Write(ctx, "semantic_cache.json", []byte(`{"version":4}`)))
		got, err := d.Read(ctx, "semantic_cache.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":4}`, string(got))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, d.Write(ctx, "semantic_anchors.json", []byte(`{"anchors":[1]}`)))
		require.NoError(t, d.Write(ctx, "semantic_anchors.json", []byte(`{"anchors":[]}`)))
		got, err := d.Read(ctx, "semantic_anchors.json")
		require.NoError(t, err)
		assert.Equal(t, `{"anchors":[]}`, string(got))
	})

	t.Run("unicode body", func(t *testing.T) {
		body := []byte(`{"text":"Schalte das Licht in der Küche an"}`)
		require.NoError(t, d.Write(ctx, "umlaut.json", body))
		got, err := d.Read(ctx, "umlaut.json")
		require.NoError(t, err)
		assert.Equal(t, body, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, d.Delete(ctx, "semantic_anchors.json"))
		_, err := d.Read(ctx, "semantic_anchors.json")
		assert.True(t, store.IsNotFound(err))

		require.NoError(t, d.Delete(ctx, "semantic_anchors.json"), "deleting an absent key is not an error")
	})
}
