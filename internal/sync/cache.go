package sync

import (
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

// Store keeps previously computed CVR snapshots keyed by their opaque ID.
// Entries are written once and never mutated. A Store is allowed to forget
// entries (bounded size, TTL): a lost baseline only forces the client into
// a full resync on its next pull, it never corrupts state.
type Store interface {
	// Get returns the CVR for the given ID, or false if unknown/expired.
	Get(id string) (CVR, bool)
	// Put stores an immutable CVR snapshot under a fresh ID.
	Put(id string, cvr CVR) error
	// Close releases underlying resources.
	Close() error
}

// MemoryStore is a bounded in-memory CVR store with LRU eviction.
type MemoryStore struct {
	cache *lru.Cache[string, CVR]
}

// NewMemoryStore creates a memory store holding at most size CVRs
func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, CVR](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

// Get returns the CVR for the given ID if still cached
func (s *MemoryStore) Get(id string) (CVR, bool) {
	return s.cache.Get(id)
}

// Put stores a CVR snapshot, possibly evicting the least recently used one
func (s *MemoryStore) Put(id string, cvr CVR) error {
	s.cache.Add(id, cvr)
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

var cvrBucket = []byte("cvrs")

// boltRecord - формат хранения CVR в bbolt вместе с временем записи
type boltRecord struct {
	CVR      CVR   `json:"cvr"`
	StoredAt int64 `json:"stored_at"`
}

// BoltStore is a durable CVR store backed by bbolt with TTL-based
// retention. Survives server restarts, so clients keep their incremental
// sync frontier across deploys.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
}

// NewBoltStore opens (or creates) a bbolt database at path.
// Entries older than ttl are treated as missing and removed by Cleanup.
func NewBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cvrBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cvr bucket: %w", err)
	}

	return &BoltStore{db: db, ttl: ttl}, nil
}

// Get returns the CVR for the given ID unless it is missing or expired
func (s *BoltStore) Get(id string) (CVR, bool) {
	var record boltRecord
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(cvrBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to unmarshal cvr record: %w", err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false
	}

	// Просроченная запись эквивалентна отсутствующей;
	// физически ее удалит Cleanup
	if s.expired(record.StoredAt, time.Now()) {
		return nil, false
	}

	return record.CVR, true
}

// Put stores a CVR snapshot
func (s *BoltStore) Put(id string, cvr CVR) error {
	record := boltRecord{CVR: cvr, StoredAt: time.Now().Unix()}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cvr record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cvrBucket).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("failed to put cvr record: %w", err)
	}

	return nil
}

// Cleanup removes expired records and returns the number deleted.
// Вызывается периодически из серверного процесса.
func (s *BoltStore) Cleanup() (int, error) {
	now := time.Now()
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(cvrBucket)
		cursor := bucket.Cursor()

		var stale [][]byte
		for key, data := cursor.First(); key != nil; key, data = cursor.Next() {
			var record boltRecord
			if err := json.Unmarshal(data, &record); err != nil {
				// Нечитаемая запись подлежит удалению
				stale = append(stale, append([]byte(nil), key...))
				continue
			}
			if s.expired(record.StoredAt, now) {
				stale = append(stale, append([]byte(nil), key...))
			}
		}

		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to cleanup cvr store: %w", err)
	}

	return removed, nil
}

// Close closes the underlying bolt database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) expired(storedAt int64, now time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	return now.Sub(time.Unix(storedAt, 0)) > s.ttl
}
