package storage

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketCA = []byte("ca")

// BoltStore implements Store on a single-file BoltDB database, used only
// to hold the cluster CA's key material alongside (but separate from) the
// Raft log directory.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the CA database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fleet-ca.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCA)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create CA bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveCA persists the CA's serialized key material under a fixed key.
func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCA)
		return b.Put([]byte("ca"), data)
	})
}

// GetCA returns the previously saved CA key material.
func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCA)
		stored := b.Get([]byte("ca"))
		if stored == nil {
			return fmt.Errorf("CA not found")
		}
		data = make([]byte, len(stored))
		copy(data, stored)
		return nil
	})
	return data, err
}
