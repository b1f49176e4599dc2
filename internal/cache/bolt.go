package cache

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend persists tiers in a bbolt file, one bucket per tier.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens or creates the cache database at path.
func OpenBolt(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(tier, key string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tier))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// bbolt values are only valid inside the transaction
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (b *BoltBackend) Put(tier, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(tier))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
}

func (b *BoltBackend) Clear(tier string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(tier)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(tier))
	})
}

func (b *BoltBackend) Count(tier string) (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket([]byte(tier)); bucket != nil {
			n = bucket.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
