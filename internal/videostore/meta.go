package videostore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Scalar per-installation entries (notification settings, last-notified
// date, push endpoint identity) live next to the videos under a meta
// prefix. In a degraded session they are held in memory only, so a dedup
// marker is at worst forgotten, never wrong for longer than the session.

// GetMeta reads a scalar entry. The second return value reports presence.
func (s *Store) GetMeta(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		v, ok := s.meta[key]
		return v, ok, nil
	}

	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("videostore: get meta %s: %w", key, err)
	}
	return value, true, nil
}

// PutMeta writes a scalar entry durably
func (s *Store) PutMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		s.meta[key] = value
		return nil
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaKeyPrefix+key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("videostore: put meta %s: %w", key, err)
	}
	return nil
}

// DeleteMeta removes a scalar entry
func (s *Store) DeleteMeta(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		delete(s.meta, key)
		return nil
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(metaKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("videostore: delete meta %s: %w", key, err)
	}
	return nil
}
