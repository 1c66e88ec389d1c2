package blobcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/internal/core"
)

// BadgerCache persists attachment content under dbPath, surviving process
// restarts. An mds.Store configured with WithBlobCache hands it attachment
// payloads at or above its threshold instead of passing them to the backend.
type BadgerCache struct {
	db      *badger.DB
	options *Options
}

// NewBadgerCache opens (creating if absent) a BadgerDB at dbPath.
func NewBadgerCache(dbPath string, options *Options) (*BadgerCache, error) {
	if options == nil {
		options = DefaultOptions()
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("blobcache: open badger at %s: %w", dbPath, err)
	}

	c := &BadgerCache{db: db, options: options}
	go c.gcLoop()
	return c, nil
}

var _ Cache = (*BadgerCache)(nil)

func (c *BadgerCache) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("blobcache: get %s: %w", key, err)
	}
	return out, nil
}

func (c *BadgerCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.options.DefaultTTL
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("blobcache: set %s: %w", key, err)
	}
	return nil
}

func (c *BadgerCache) Delete(ctx context.Context, key string) error {
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(key)) }); err != nil {
		return fmt.Errorf("blobcache: delete %s: %w", key, err)
	}
	return nil
}

func (c *BadgerCache) Clear(ctx context.Context) error {
	return c.db.DropAll()
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func (c *BadgerCache) gcLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	log := core.Component("blobcache.badger")
	for range ticker.C {
	again:
		if err := c.db.RunValueLogGC(0.5); err == nil {
			goto again
		} else if !errors.Is(err, badger.ErrNoRewrite) {
			log.Warn("value log gc failed", zap.Error(err))
		}
	}
}
