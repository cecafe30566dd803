package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/colony/pkg/types"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// DBFile is the database file name inside the data directory
const DBFile = "colony.db"

// DefaultLockTimeout bounds how long NewBoltStore waits for the file lock
const DefaultLockTimeout = time.Second

// ErrLocked is returned when another colony process holds the database
var ErrLocked = errors.New("data dir locked by another colony process")

var (
	// Bucket names
	bucketSlots = []byte("slots")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	return OpenBoltStore(dataDir, DefaultLockTimeout)
}

// OpenBoltStore is NewBoltStore with an explicit lock timeout. It fails with
// ErrLocked if the lock is still held when the timeout expires.
func OpenBoltStore(dataDir string, lockTimeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: lockTimeout})
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSlots); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSlots, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// slotKey encodes an index big-endian so bucket iteration follows index order
func slotKey(index int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}

// SaveSlot writes a slot, replacing any previous record for its index
func (s *BoltStore) SaveSlot(slot *types.WorkerSlot) error {
	if slot.Index < 0 {
		return fmt.Errorf("invalid slot index %d", slot.Index)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		data, err := json.Marshal(slot)
		if err != nil {
			return err
		}
		return b.Put(slotKey(slot.Index), data)
	})
}

func (s *BoltStore) GetSlot(index int) (*types.WorkerSlot, error) {
	var slot types.WorkerSlot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		data := b.Get(slotKey(index))
		if data == nil {
			return fmt.Errorf("slot not found: %d", index)
		}
		return json.Unmarshal(data, &slot)
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListSlots returns every stored slot ordered by index
func (s *BoltStore) ListSlots() ([]*types.WorkerSlot, error) {
	var slots []*types.WorkerSlot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		return b.ForEach(func(k, v []byte) error {
			var slot types.WorkerSlot
			if err := json.Unmarshal(v, &slot); err != nil {
				return err
			}
			slots = append(slots, &slot)
			return nil
		})
	})
	return slots, err
}
