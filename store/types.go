package store

import "errors"

var (
	// ErrKeyNotFound is an error indicating a given key does not exist
	ErrKeyNotFound = errors.New("not found")
	// ErrBucketNotFound is an error indicating the bucket was not initialized
	ErrBucketNotFound = errors.New("bucket not found")
)

const (
	// Permissions to use on the db file. This is only used if the
	// database file does not exist and needs to be created.
	dbFileMode = 0600
)

var (
	bbrBucket       = []byte("bbr")
	configKey       = []byte("config")
	enabledKey      = []byte("enabled")
	domainPrefixKey = []byte("domain_prefix")
)
