package server

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/profclems/tracepage/trace"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when no trace is stored under an id
var ErrNotFound = errors.New("trace not found")

// Record is a stored payload
type Record struct {
	ID        string        `json:"id" msgpack:"id"`
	CreatedAt time.Time     `json:"created_at" msgpack:"created_at"`
	Payload   trace.Payload `json:"payload" msgpack:"payload"`
}

// Store keeps captured payloads so each gets its own page
type Store interface {
	Put(rec Record) error
	Get(id string) (Record, error)
	// List returns records newest first
	List() ([]Record, error)
	Close() error
}

// MemoryStore keeps the most recent records in memory
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	maxSize int
}

// NewMemoryStore keeps at most maxSize records (100 when maxSize <= 0)
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &MemoryStore{maxSize: maxSize}
}

func (m *MemoryStore) Put(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Prepend
	m.records = append([]Record{rec}, m.records...)
	if len(m.records) > m.maxSize {
		m.records = m.records[:m.maxSize]
	}
	return nil
}

func (m *MemoryStore) Get(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *MemoryStore) List() ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dst := make([]Record, len(m.records))
	copy(dst, m.records)
	return dst, nil
}

func (m *MemoryStore) Close() error { return nil }

const recordPrefix = "trace/"

// PebbleStore persists records in a pebble database as msgpack values
// under "trace/<id>".
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (or creates) a store at path
func OpenPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{Logger: &quietLogger{}})
	if err != nil {
		return nil, fmt.Errorf("failed to open trace store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Put(rec Record) error {
	value, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := p.db.Set([]byte(recordPrefix+rec.ID), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (p *PebbleStore) Get(id string) (Record, error) {
	val, closer, err := p.db.Get([]byte(recordPrefix + id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read record: %w", err)
	}
	defer closer.Close()

	var rec Record
	if err := msgpack.NewDecoder(bytes.NewReader(val)).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

func (p *PebbleStore) List() ([]Record, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(recordPrefix),
		UpperBound: []byte(recordPrefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer iter.Close()

	var records []Record
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := msgpack.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %q: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (p *PebbleStore) Close() error {
	return p.db.Close()
}

type quietLogger struct{}

func (q *quietLogger) Infof(format string, args ...interface{})  {}
func (q *quietLogger) Errorf(format string, args ...interface{}) {}
func (q *quietLogger) Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }
