package calbuf

import (
	"errors"
	"unsafe"

	"go.etcd.io/bbolt"
)

// boltStorage adapts a Bolt database. Table rows live in a nested bucket
// under the table's root bucket.
type boltStorage struct {
	*bbolt.DB
}

func newBoltStorage(bdb *bbolt.DB) storage {
	return boltStorage{bdb}
}

func (s boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.Begin(writable)
	if err != nil {
		return nil, err
	}
	return boltTx{btx}, nil
}

// boltTx promotes Writable, Commit and Size from *bbolt.Tx.
type boltTx struct {
	*bbolt.Tx
}

func (tx boltTx) Bucket(name, sub string) storageBucket {
	b := tx.Tx.Bucket(keyOf(name))
	if b != nil && sub != "" {
		b = b.Bucket(keyOf(sub))
	}
	if b == nil {
		return nil
	}
	return boltBucket{b}
}

func (tx boltTx) CreateBucket(name, sub string) (storageBucket, error) {
	b, err := tx.CreateBucketIfNotExists([]byte(name))
	if err == nil && sub != "" {
		b, err = b.CreateBucketIfNotExists([]byte(sub))
	}
	if err != nil {
		return nil, err
	}
	return boltBucket{b}, nil
}

func (tx boltTx) DeleteBucket(name, sub string) error {
	root := tx.Tx.Bucket(keyOf(name))
	if root == nil || sub == "" {
		return ErrBucketNotFound
	}
	err := root.DeleteBucket(keyOf(sub))
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return ErrBucketNotFound
	}
	return err
}

// Rollback after Commit is a no-op, so callers can always defer it.
func (tx boltTx) Rollback() error {
	if err := tx.Tx.Rollback(); !errors.Is(err, bbolt.ErrTxClosed) {
		return err
	}
	return nil
}

// boltBucket promotes Get, Put and Delete from *bbolt.Bucket.
type boltBucket struct {
	*bbolt.Bucket
}

func (b boltBucket) Cursor() storageCursor {
	return b.Bucket.Cursor()
}

func (b boltBucket) Stats() bucketStats {
	s := b.Bucket.Stats()
	return bucketStats{
		KeyN:        s.KeyN,
		LeafInuse:   int64(s.LeafInuse),
		LeafAlloc:   int64(s.LeafAlloc),
		BranchAlloc: int64(s.BranchAlloc),
	}
}

// keyOf returns s as a key without copying; Bolt does not retain lookup keys.
func keyOf(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
