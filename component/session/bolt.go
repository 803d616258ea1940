package session

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("sessions")

func (r *record) encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	err := gob.NewEncoder(buf).Encode(r)
	return buf.Bytes(), err
}

func decodeRecord(data []byte) (*record, error) {
	var r *record
	buf := bytes.NewBuffer(data)
	err := gob.NewDecoder(buf).Decode(&r)
	return r, err
}

// BoltBackend stores sessions in a bbolt database file, so they survive a
// restart of a single instance.
type BoltBackend struct {
	db  *bolt.DB
	Now func() time.Time
}

func NewBoltBackend(path string, mode os.FileMode) (*BoltBackend, error) {
	db, err := bolt.Open(path, mode, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltBackend{db: db, Now: time.Now}, nil
}

func (s *BoltBackend) Load(_ context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		o := tx.Bucket(boltBucket).Get([]byte(id))
		if o == nil {
			return &notFoundError{fmt.Errorf("session %s was not found", id)}
		}
		r, err := decodeRecord(o)
		if err != nil {
			return err
		}
		if r.expired(s.Now()) {
			return &notFoundError{fmt.Errorf("session %s has expired", id)}
		}
		data = r.Data
		return nil
	})
	return data, err
}

func (s *BoltBackend) Save(_ context.Context, id string, data []byte, ttl time.Duration) error {
	r := &record{Data: data}
	if ttl > 0 {
		exp := s.Now().Add(ttl)
		r.Expires = &exp
	}
	rb, err := r.encode()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(id), rb)
	})
}

func (s *BoltBackend) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(id))
	})
}

// GarbageCollect drops expired sessions, returning how many were removed.
func (s *BoltBackend) GarbageCollect() (int, error) {
	var n int
	now := s.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		var expired [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			r, err := decodeRecord(v)
			if err != nil || r.expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

func (s *BoltBackend) Close() error {
	return s.db.Close()
}
