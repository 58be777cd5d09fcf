package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage implements Storage on top of BadgerDB
type BadgerStorage struct {
	db    *badger.DB
	opts  BadgerOptions
	stats badgerStats
}

// BadgerOptions configures the BadgerDB instance
type BadgerOptions struct {
	// Directory to store the database files
	Dir string

	// InMemory creates an in-memory database (for testing)
	InMemory bool

	// SyncWrites fsyncs every write before returning
	SyncWrites bool

	// ValueLogFileSize sets the maximum size of value log files
	ValueLogFileSize int64
}

// DefaultBadgerOptions returns options sized for a small metadata store
func DefaultBadgerOptions(dir string) BadgerOptions {
	return BadgerOptions{
		Dir:              dir,
		SyncWrites:       true,
		ValueLogFileSize: 64 << 20, // 64MB
	}
}

type badgerStats struct {
	readCount  int64
	writeCount int64
	scanCount  int64
	openedAt   time.Time
}

// NewBadgerStorage opens (or creates) a BadgerDB-backed storage
func NewBadgerStorage(opts BadgerOptions) (*BadgerStorage, error) {
	dir := opts.Dir
	if opts.InMemory {
		dir = ""
	}

	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)

	if opts.ValueLogFileSize > 0 {
		badgerOpts = badgerOpts.WithValueLogFileSize(opts.ValueLogFileSize)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &BadgerStorage{
		db:    db,
		opts:  opts,
		stats: badgerStats{openedAt: time.Now()},
	}, nil
}

// Get retrieves a value by key
func (bs *BadgerStorage) Get(ctx context.Context, key []byte) ([]byte, error) {
	atomic.AddInt64(&bs.stats.readCount, 1)

	var result []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		var err error
		result, err = getValue(txn, key)
		return err
	})
	return result, err
}

// Set stores a key-value pair
func (bs *BadgerStorage) Set(ctx context.Context, key, value []byte) error {
	atomic.AddInt64(&bs.stats.writeCount, 1)

	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Scan returns an iterator over every key that starts with prefix.
// The caller must Close it.
func (bs *BadgerStorage) Scan(ctx context.Context, prefix []byte) Iterator {
	atomic.AddInt64(&bs.stats.scanCount, 1)

	txn := bs.db.NewTransaction(false)
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix

	iter := txn.NewIterator(iterOpts)
	iter.Seek(prefix)

	return &badgerIterator{
		iter:   iter,
		txn:    txn,
		ctx:    ctx,
		prefix: prefix,
	}
}

// Transaction executes fn within a read-write transaction. The transaction
// commits when fn returns nil and is discarded otherwise.
func (bs *BadgerStorage) Transaction(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return bs.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn, bs: bs})
	})
}

// Size returns the on-disk size of the LSM tree plus the value log
func (bs *BadgerStorage) Size() int64 {
	lsm, vlog := bs.db.Size()
	return lsm + vlog
}

// Stats returns storage statistics
func (bs *BadgerStorage) Stats() StorageStats {
	return StorageStats{
		TotalSize:  bs.Size(),
		ReadCount:  atomic.LoadInt64(&bs.stats.readCount),
		WriteCount: atomic.LoadInt64(&bs.stats.writeCount),
		ScanCount:  atomic.LoadInt64(&bs.stats.scanCount),
		OpenedAt:   bs.stats.openedAt,
	}
}

// Path returns the directory of the database, empty when in memory
func (bs *BadgerStorage) Path() string {
	if bs.opts.InMemory {
		return ""
	}
	return bs.opts.Dir
}

// Close closes the database
func (bs *BadgerStorage) Close() error {
	return bs.db.Close()
}

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// badgerTxn implements the Txn interface
type badgerTxn struct {
	txn *badger.Txn
	bs  *BadgerStorage
}

func (bt *badgerTxn) Get(key []byte) ([]byte, error) {
	atomic.AddInt64(&bt.bs.stats.readCount, 1)
	return getValue(bt.txn, key)
}

func (bt *badgerTxn) Set(key, value []byte) error {
	atomic.AddInt64(&bt.bs.stats.writeCount, 1)
	return bt.txn.Set(key, value)
}

// badgerIterator implements the Iterator interface
type badgerIterator struct {
	iter    *badger.Iterator
	txn     *badger.Txn
	ctx     context.Context
	prefix  []byte
	err     error
	closed  bool
	started bool
}

func (bi *badgerIterator) Next() bool {
	if bi.closed || bi.err != nil {
		return false
	}

	select {
	case <-bi.ctx.Done():
		bi.err = bi.ctx.Err()
		return false
	default:
	}

	// The first call reports the item Seek landed on
	if !bi.started {
		bi.started = true
	} else {
		bi.iter.Next()
	}
	return bi.iter.ValidForPrefix(bi.prefix)
}

func (bi *badgerIterator) Key() []byte {
	if !bi.iter.Valid() {
		return nil
	}
	return bi.iter.Item().KeyCopy(nil)
}

func (bi *badgerIterator) Value() []byte {
	if !bi.iter.Valid() {
		return nil
	}
	value, err := bi.iter.Item().ValueCopy(nil)
	if err != nil {
		bi.err = err
		return nil
	}
	return value
}

func (bi *badgerIterator) Error() error {
	return bi.err
}

func (bi *badgerIterator) Close() {
	if bi.closed {
		return
	}
	bi.iter.Close()
	bi.txn.Discard()
	bi.closed = true
}
