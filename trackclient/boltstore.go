// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketState = []byte("state")

// BoltStore is the durable LocalStore implementation backed by a bbolt file.
// bbolt gives atomic replace semantics per write transaction, which is all
// the engine requires from local persistence.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if needed) the bbolt file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load implements LocalStore.
func (s *BoltStore) Load(key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketState).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		// The slice is only valid inside the transaction.
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %q: %w", key, err)
	}
	return value, found, nil
}

// Save implements LocalStore.
func (s *BoltStore) Save(key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	return nil
}
