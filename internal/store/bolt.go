package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketBulbs = []byte("bulbs")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBulbs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveBulb(bulb *Bulb) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBulbs)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketBulbs)
		}
		data, err := json.Marshal(bulb)
		if err != nil {
			return err
		}
		return b.Put([]byte(bulb.IP), data)
	})
}

func (s *BoltStore) GetBulb(ip string) (*Bulb, error) {
	var bulb Bulb
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBulbs)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketBulbs)
		}
		data := b.Get([]byte(ip))
		if data == nil {
			return fmt.Errorf("bulb %s: %w", ip, ErrNotFound)
		}
		return json.Unmarshal(data, &bulb)
	})
	if err != nil {
		return nil, err
	}
	return &bulb, nil
}

func (s *BoltStore) DeleteBulb(ip string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBulbs)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketBulbs)
		}
		return b.Delete([]byte(ip))
	})
}

func (s *BoltStore) ListBulbs() ([]*Bulb, error) {
	var bulbs []*Bulb
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBulbs)
		if b == nil {
			return nil // no bucket = no bulbs
		}
		bulbs = make([]*Bulb, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var bulb Bulb
			if err := json.Unmarshal(v, &bulb); err != nil {
				return err
			}
			bulbs = append(bulbs, &bulb)
			return nil
		})
	})
	return bulbs, err
}

func (s *BoltStore) UpdateBulb(ip string, fn func(b *Bulb) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBulbs)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketBulbs)
		}
		data := b.Get([]byte(ip))
		if data == nil {
			return fmt.Errorf("bulb %s: %w", ip, ErrNotFound)
		}
		var bulb Bulb
		if err := json.Unmarshal(data, &bulb); err != nil {
			return err
		}
		if err := fn(&bulb); err != nil {
			return err
		}
		out, err := json.Marshal(&bulb)
		if err != nil {
			return err
		}
		return b.Put([]byte(ip), out)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
