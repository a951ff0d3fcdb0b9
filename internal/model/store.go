package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"
)

var (
	bucketCallSigns    = []byte("callsigns")
	bucketTransmitters = []byte("transmitters")
)

// Store is the bbolt-backed persistence layer for repository records.
//
// bbolt is a good fit here: pure Go, ACID, a single file in the data
// directory, and the record set (callsigns + transmitters) is small enough
// that full JSON values per key stay cheap. Keys are lowercased names so
// lookups match the repository's case-insensitive semantics.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (or creates) the record database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCallSigns); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketTransmitters)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// LoadAll reads every persisted callsign and transmitter record.
func (s *Store) LoadAll() ([]*CallSign, []*Transmitter, error) {
	var callsigns []*CallSign
	var transmitters []*Transmitter

	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCallSigns).ForEach(func(k, v []byte) error {
			var c CallSign
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("store: decode callsign %s: %w", k, err)
			}
			callsigns = append(callsigns, &c)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketTransmitters).ForEach(func(k, v []byte) error {
			var t Transmitter
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("store: decode transmitter %s: %w", k, err)
			}
			transmitters = append(transmitters, &t)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return callsigns, transmitters, nil
}

// PutCallSign upserts one callsign record.
func (s *Store) PutCallSign(c *CallSign) error {
	return s.put(bucketCallSigns, c.Name, c)
}

// DeleteCallSign removes one callsign record.
func (s *Store) DeleteCallSign(name string) error {
	return s.delete(bucketCallSigns, name)
}

// PutTransmitter upserts one transmitter record.
func (s *Store) PutTransmitter(t *Transmitter) error {
	return s.put(bucketTransmitters, t.Name, t)
}

// DeleteTransmitter removes one transmitter record.
func (s *Store) DeleteTransmitter(name string) error {
	return s.delete(bucketTransmitters, name)
}

// Close flushes and closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(bucket []byte, name string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", name, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(storeKey(name), val)
	})
}

func (s *Store) delete(bucket []byte, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete(storeKey(name))
	})
}

func storeKey(name string) []byte { return []byte(strings.ToLower(name)) }
