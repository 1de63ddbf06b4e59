package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"burnbin/internal/storage"
)

var (
	pasteBucket  = []byte("pastes")
	expireBucket = []byte("expires")
)

// Store implements storage.Store backed by BoltDB. Every consume runs inside
// a single write transaction, so concurrent consumers of the same id
// serialize on the database lock.
type Store struct {
	db *bolt.DB
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, storage.Unavailable("open bolt db", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pasteBucket); err != nil {
			return fmt.Errorf("create paste bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(expireBucket); err != nil {
			return fmt.Errorf("create expire bucket: %w", err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, storage.Unavailable("init buckets", err)
	}

	return &Store{db: db}, nil
}

// Create persists a paste record. The caller owns id uniqueness.
func (s *Store) Create(ctx context.Context, rec *storage.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		pBucket := tx.Bucket(pasteBucket)
		eBucket := tx.Bucket(expireBucket)
		if pBucket == nil || eBucket == nil {
			return errors.New("buckets not initialized")
		}
		if err := pBucket.Put([]byte(rec.ID), data); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		if rec.ExpiresAtMS != nil {
			if err := eBucket.Put(expireKey(*rec.ExpiresAtMS, rec.ID), []byte(rec.ID)); err != nil {
				return fmt.Errorf("index expiry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return storage.Unavailable("create", err)
	}
	return nil
}

// ConsumeByID atomically fetches a paste and applies its expiry policy. The
// lookup, the expiry and view checks, and the resulting delete or decrement
// all happen inside one bolt write transaction.
func (s *Store) ConsumeByID(ctx context.Context, id string, nowMS int64) (*storage.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var out *storage.Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		pBucket := tx.Bucket(pasteBucket)
		eBucket := tx.Bucket(expireBucket)
		if pBucket == nil || eBucket == nil {
			return errors.New("buckets not initialized")
		}

		raw := pBucket.Get([]byte(id))
		if raw == nil {
			return storage.ErrNotFound
		}

		var rec storage.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Corrupt entry: report not found rather than fail the caller.
			return storage.ErrNotFound
		}

		// Expiry is checked before the view limit.
		if rec.Expired(nowMS) {
			if err := deleteRecord(pBucket, eBucket, &rec); err != nil {
				return err
			}
			return storage.ErrNotFound
		}

		if rec.ViewLimited() {
			if *rec.RemainingViews <= 0 {
				if err := deleteRecord(pBucket, eBucket, &rec); err != nil {
					return err
				}
				return storage.ErrNotFound
			}
			next := *rec.RemainingViews - 1
			if next < 0 {
				next = 0
			}
			rec.RemainingViews = &next
			data, err := json.Marshal(&rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			if err := pBucket.Put([]byte(id), data); err != nil {
				return fmt.Errorf("persist decrement: %w", err)
			}
		}

		out = &rec
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable("consume", err)
	}
	return out, nil
}

// HealthCheck performs a read-only no-op transaction.
func (s *Store) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(pasteBucket) == nil {
			return errors.New("pastes bucket missing")
		}
		return nil
	})
	if err != nil {
		return storage.Unavailable("health check", err)
	}
	return nil
}

// DeleteExpired removes all pastes whose expiry is at or before nowMS.
func (s *Store) DeleteExpired(ctx context.Context, nowMS int64) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		pBucket := tx.Bucket(pasteBucket)
		eBucket := tx.Bucket(expireBucket)
		if pBucket == nil || eBucket == nil {
			return errors.New("buckets not initialized")
		}

		cursor := eBucket.Cursor()
		for key, val := cursor.First(); key != nil; key, val = cursor.Next() {
			ts := int64(binary.BigEndian.Uint64(key[:8]))
			if ts > nowMS {
				break
			}
			if err := pBucket.Delete(val); err != nil {
				return fmt.Errorf("delete expired paste %s: %w", val, err)
			}
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("delete expiry index: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, storage.Unavailable("delete expired", err)
	}
	return removed, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func deleteRecord(pBucket, eBucket *bolt.Bucket, rec *storage.Record) error {
	if rec.ExpiresAtMS != nil {
		if err := eBucket.Delete(expireKey(*rec.ExpiresAtMS, rec.ID)); err != nil {
			return fmt.Errorf("delete expiry index: %w", err)
		}
	}
	if err := pBucket.Delete([]byte(rec.ID)); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func expireKey(expiresAtMS int64, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(expiresAtMS))
	copy(key[8:], id)
	return key
}
