// Package blobcache provides the backing-cache tier attachment content can
// be offloaded to: a simple byte-slice cache keyed by a composite
// "docType/docID/attachmentID" string, adapted from nodestorage/v2's
// generic document Cache[T] family down to the one concrete shape the
// engine actually stores out-of-line (raw attachment bytes).
package blobcache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned when a key is not present in the cache.
	ErrMiss = errors.New("blobcache: miss")
	// ErrClosed is returned when an operation is attempted on a closed cache.
	ErrClosed = errors.New("blobcache: closed")
)

// Cache is the backing store for attachment content: a flat, TTL-aware
// byte-slice cache. An mds.Store configured with WithBlobCache uses it to
// keep large attachment payloads out of the backend.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Options configures a Cache implementation.
type Options struct {
	// DefaultTTL applies when Set is called with ttl <= 0. Zero means no
	// expiration.
	DefaultTTL time.Duration

	// MaxItems bounds a MemoryCache's size; it is ignored by BadgerCache,
	// which is bounded by disk instead. Zero means unbounded.
	MaxItems int
}

// DefaultOptions returns sensible defaults: a day-long TTL and a ten
// thousand item ceiling for the in-memory tier.
func DefaultOptions() *Options {
	return &Options{
		DefaultTTL: 24 * time.Hour,
		MaxItems:   10000,
	}
}

// Key builds the composite cache key one attachment is stored under.
func Key(docType, docID, attachmentID string) string {
	return docType + "/" + docID + "/" + attachmentID
}
