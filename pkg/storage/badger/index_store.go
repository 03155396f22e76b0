// Package badger stores the search index in an embedded BadgerDB database.
//
// Entries live under keys of the form idx:<type>:<id> with a JSON encoded
// search.IndexEntry as the value, so Scan for a single type is a prefix
// iteration and Clear is a prefix drop.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/search"
)

const keyPrefix = "idx:"

// IndexStore is a search.IndexStore on BadgerDB
type IndexStore struct {
	db *badger.DB
}

var _ search.IndexStore = (*IndexStore)(nil)

// badgerLogger routes badger's internal logging through our logger
type badgerLogger struct {
	logger *observability.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Errorf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warnf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debugf(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debugf(msg, items...) }

// Open opens (creating if needed) the database directory at path. An empty
// path opens an in-memory database.
func Open(path string, logger *observability.Logger) (*IndexStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}

	opts.Logger = &badgerLogger{logger: logger.OrNop().WithField("component", "badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index: %w", err)
	}
	return &IndexStore{db: db}, nil
}

// Close closes the database
func (s *IndexStore) Close() error {
	return s.db.Close()
}

func entryKey(entityType search.EntityType, entityID string) []byte {
	return []byte(keyPrefix + string(entityType) + ":" + entityID)
}

func scanPrefix(filter search.EntityType) []byte {
	if filter == "" || filter == search.EntityTypeAll {
		return []byte(keyPrefix)
	}
	return []byte(keyPrefix + string(filter) + ":")
}

func (s *IndexStore) Upsert(ctx context.Context, entry *search.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := entryKey(entry.EntityType, entry.EntityID)

	err := s.db.Update(func(txn *badger.Txn) error {
		stored := *entry
		existing, err := readEntry(txn, key)
		switch {
		case err == nil:
			stored.CreatedAt = existing.CreatedAt
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		value, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert index entry %s/%s: %w", entry.EntityType, entry.EntityID, err)
	}
	return nil
}

func (s *IndexStore) Remove(ctx context.Context, entityType search.EntityType, entityID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(entityType, entityID))
	})
	if err != nil {
		return fmt.Errorf("failed to remove index entry %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

func (s *IndexStore) Get(ctx context.Context, entityType search.EntityType, entityID string) (*search.IndexEntry, error) {
	var entry *search.IndexEntry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = readEntry(txn, entryKey(entityType, entityID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, search.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index entry %s/%s: %w", entityType, entityID, err)
	}
	return entry, nil
}

// Scan returns entries in key order
func (s *IndexStore) Scan(ctx context.Context, filter search.EntityType) ([]*search.IndexEntry, error) {
	entries := []*search.IndexEntry{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix(filter)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry search.IndexEntry
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("corrupt entry %s: %w", iter.Item().Key(), err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}
	return entries, nil
}

func (s *IndexStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count index entries: %w", err)
	}
	return count, nil
}

func (s *IndexStore) Clear(ctx context.Context) error {
	if err := s.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

func readEntry(txn *badger.Txn, key []byte) (*search.IndexEntry, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var entry search.IndexEntry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return nil, fmt.Errorf("corrupt entry %s: %w", key, err)
	}
	return &entry, nil
}
