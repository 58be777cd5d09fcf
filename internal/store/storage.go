package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Storage is the key-value interface the vault keeps its state in.
// Keys are namespaced by prefix; values are JSON documents.
type Storage interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error

	Scan(ctx context.Context, prefix []byte) Iterator

	Transaction(ctx context.Context, fn func(Txn) error) error

	Size() int64
	Stats() StorageStats
	Close() error
}

// Txn represents a read-write transaction
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// Iterator provides sequential access to key-value pairs under a prefix
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close()
}

// StorageStats reports operation counters since the storage was opened
type StorageStats struct {
	TotalSize  int64 `json:"total_size"`
	ReadCount  int64 `json:"read_count"`
	WriteCount int64 `json:"write_count"`
	ScanCount  int64 `json:"scan_count"`

	OpenedAt time.Time `json:"opened_at"`
}

const (
	PrefixMeta = "meta:" // meta:{name} -> JSON document

	MetaGenesis  = "genesis"
	MetaLaunches = "launches"
)

func MetaKey(name string) []byte {
	return []byte(PrefixMeta + name)
}

func MarshalValue(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func UnmarshalValue(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// StorageError wraps storage-specific errors
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return "storage " + e.Op + ": " + e.Err.Error()
	}
	return "storage " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var errNotFound = errors.New("key not found")

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = &StorageError{Op: "get", Err: errNotFound}

// IsNotFound reports whether err is, or wraps, ErrKeyNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
