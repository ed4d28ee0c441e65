package store

import (
	"bytes"
	"io/ioutil"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/backbone-router/bbr"
)

func openTestStore(t *testing.T) (*BoltStore, string) {
	dir, err := ioutil.TempDir("", "bbr-store")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "bbr.bolt")
	db, err := New(Options{Path: path, NoSync: true})
	require.NoError(t, err)
	return db, path
}

func TestBoltStore(t *testing.T) {
	db, path := openTestStore(t)

	t.Run("empty", func(t *testing.T) {
		_, err := db.LoadConfig()
		require.Equal(t, ErrKeyNotFound, err)
		_, err = db.LoadEnabled()
		require.Equal(t, ErrKeyNotFound, err)
		_, err = db.LoadDomainPrefix()
		require.Equal(t, ErrKeyNotFound, err)
	})

	config := bbr.Config{SequenceNumber: 42, ReregistrationDelay: 10, MlrTimeout: 600}
	prefix := bbr.OnMeshPrefixConfig{
		Prefix: netip.MustParsePrefix("fd00:7d03:7d03:7d03::/64"),
		Dp:     true,
		OnMesh: true,
		Stable: true,
	}
	require.NoError(t, db.SaveConfig(config))
	require.NoError(t, db.SaveEnabled(true))
	require.NoError(t, db.SaveDomainPrefix(prefix))

	t.Run("survives reopen", func(t *testing.T) {
		require.NoError(t, db.Close())
		reopened, err := New(Options{Path: path})
		require.NoError(t, err)
		db = reopened

		loaded, err := db.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, config, loaded)
		enabled, err := db.LoadEnabled()
		require.NoError(t, err)
		assert.True(t, enabled)
		loadedPrefix, err := db.LoadDomainPrefix()
		require.NoError(t, err)
		assert.Equal(t, prefix, loadedPrefix)
	})

	t.Run("delete domain prefix", func(t *testing.T) {
		require.NoError(t, db.DeleteDomainPrefix())
		_, err := db.LoadDomainPrefix()
		require.Equal(t, ErrKeyNotFound, err)
	})

	t.Run("backup", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, db.Snapshot(&buf))
		assert.NotZero(t, buf.Len())
	})
	require.NoError(t, db.Close())
}
