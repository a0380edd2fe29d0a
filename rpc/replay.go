package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketCalls = []byte("calls")

// ReplayCache records accepted calls, keyed by caller and call digest, so
// each signed call executes at most once inside the signature window.
type ReplayCache interface {
	// Remember stores key and reports whether it had not been seen before.
	Remember(key string, now time.Time) (bool, error)
}

type memoryReplay struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func newMemoryReplay(window time.Duration) *memoryReplay {
	return &memoryReplay{window: window, seen: make(map[string]time.Time)}
}

func (m *memoryReplay) Remember(key string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for seen, at := range m.seen {
		if now.Sub(at) > m.window {
			delete(m.seen, seen)
		}
	}
	if _, exists := m.seen[key]; exists {
		return false, nil
	}
	m.seen[key] = now
	return true, nil
}

// BoltReplay keeps the replay cache in a BoltDB file so a restarted server
// still rejects calls it accepted before going down.
type BoltReplay struct {
	db        *bolt.DB
	window    time.Duration
	lastPrune time.Time
}

// OpenBoltReplay opens (or creates) the cache at path. Entries older than
// window are pruned lazily.
func OpenBoltReplay(path string, window time.Duration) (*BoltReplay, error) {
	if window <= 0 {
		return nil, errors.New("rpc: replay window must be positive")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("rpc: open replay cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCalls)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("rpc: init replay cache: %w", err)
	}
	return &BoltReplay{db: db, window: window}, nil
}

// Remember implements ReplayCache. Writers are serialised by bolt, so
// lastPrune needs no extra lock.
func (r *BoltReplay) Remember(key string, now time.Time) (bool, error) {
	fresh := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCalls)
		if now.Sub(r.lastPrune) > r.window {
			if err := pruneCalls(bucket, now.Add(-r.window)); err != nil {
				return err
			}
			r.lastPrune = now
		}
		if raw := bucket.Get([]byte(key)); raw != nil {
			at := time.Unix(int64(binary.BigEndian.Uint64(raw)), 0)
			if now.Sub(at) <= r.window {
				return nil
			}
		}
		fresh = true
		var stamp [8]byte
		binary.BigEndian.PutUint64(stamp[:], uint64(now.Unix()))
		return bucket.Put([]byte(key), stamp[:])
	})
	if err != nil {
		return false, fmt.Errorf("rpc: replay cache: %w", err)
	}
	return fresh, nil
}

// Len reports the number of remembered calls.
func (r *BoltReplay) Len() (int, error) {
	n := 0
	err := r.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketCalls).Stats().KeyN
		return nil
	})
	return n, err
}

// Close releases the underlying file.
func (r *BoltReplay) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func pruneCalls(bucket *bolt.Bucket, cutoff time.Time) error {
	var stale [][]byte
	c := bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if len(v) != 8 || int64(binary.BigEndian.Uint64(v)) < cutoff.Unix() {
			stale = append(stale, append([]byte(nil), k...))
		}
	}
	for _, k := range stale {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
