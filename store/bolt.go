// Package store persists the local Backbone Router settings across restarts.
package store

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/boltdb/bolt"
	pkgerrors "github.com/pkg/errors"
	"github.com/vx-labs/backbone-router/bbr"
)

type Options struct {
	// Path is the file path to the BoltDB to use
	Path string

	// BoltOptions contains any specific BoltDB options you might
	// want to specify [e.g. open timeout]
	BoltOptions *bolt.Options

	// NoSync causes the database to skip fsync calls after each
	// write. This is unsafe, so it should be used with caution.
	NoSync bool
}

type BoltStore struct {
	conn    *bolt.DB
	options Options
}

// Close is used to gracefully close the DB connection.
func (b *BoltStore) Close() error {
	return b.conn.Close()
}

func New(options Options) (*BoltStore, error) {
	handle, err := bolt.Open(options.Path, dbFileMode, options.BoltOptions)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", options.Path)
	}
	handle.NoSync = options.NoSync

	store := &BoltStore{
		conn:    handle,
		options: options,
	}
	return store, store.initStore()
}

func (b *BoltStore) initStore() error {
	return b.conn.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bbrBucket)
		return err
	})
}

func (b *BoltStore) put(key []byte, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return b.conn.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bbrBucket)
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Put(key, buf.Bytes())
	})
}

func (b *BoltStore) get(key []byte, v interface{}) error {
	return b.conn.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bbrBucket)
		if bucket == nil {
			return ErrBucketNotFound
		}
		value := bucket.Get(key)
		if value == nil {
			return ErrKeyNotFound
		}
		return gob.NewDecoder(bytes.NewReader(value)).Decode(v)
	})
}

func (b *BoltStore) delete(key []byte) error {
	return b.conn.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bbrBucket)
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Delete(key)
	})
}

func (b *BoltStore) SaveConfig(config bbr.Config) error {
	return b.put(configKey, config)
}

// LoadConfig returns ErrKeyNotFound when no configuration was saved yet.
func (b *BoltStore) LoadConfig() (bbr.Config, error) {
	var config bbr.Config
	return config, b.get(configKey, &config)
}

func (b *BoltStore) SaveEnabled(enabled bool) error {
	return b.put(enabledKey, enabled)
}

func (b *BoltStore) LoadEnabled() (bool, error) {
	var enabled bool
	return enabled, b.get(enabledKey, &enabled)
}

func (b *BoltStore) SaveDomainPrefix(config bbr.OnMeshPrefixConfig) error {
	return b.put(domainPrefixKey, config)
}

func (b *BoltStore) LoadDomainPrefix() (bbr.OnMeshPrefixConfig, error) {
	var config bbr.OnMeshPrefixConfig
	return config, b.get(domainPrefixKey, &config)
}

func (b *BoltStore) DeleteDomainPrefix() error {
	return b.delete(domainPrefixKey)
}

// Snapshot writes a consistent copy of the database to out.
func (b *BoltStore) Snapshot(out io.Writer) error {
	return b.conn.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(out)
		return err
	})
}
