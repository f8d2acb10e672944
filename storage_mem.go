package calbuf

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
)

var errMemClosed = errors.New("storage closed")

// memStorage keeps buckets in memory. Committed bucket maps are never
// mutated: a write transaction copies the map and every bucket it touches,
// and Commit swaps the copy in. Readers therefore keep a consistent snapshot
// without locking.
type memStorage struct {
	writer sync.Mutex // held by the open write transaction

	mu      sync.Mutex
	buckets map[string]*memBucket
	closed  bool
}

// newMemStorage returns a transient in-memory storage; everything is lost on Close.
func newMemStorage() storage {
	return &memStorage{buckets: make(map[string]*memBucket)}
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	if writable {
		s.writer.Lock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if writable {
			s.writer.Unlock()
		}
		return nil, errMemClosed
	}
	return &memTx{base: s, writable: writable, buckets: s.buckets}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	closed   bool

	buckets map[string]*memBucket
	private bool            // buckets is this tx's own copy
	owned   map[string]bool // buckets already cloned by this tx
}

func (tx *memTx) Writable() bool { return tx.writable }

func memBucketKey(name, sub string) string {
	return name + "\x00" + sub
}

// own makes the bucket map and the bucket at key safe to mutate.
func (tx *memTx) own(key string) *memBucket {
	if !tx.private {
		tx.buckets = maps.Clone(tx.buckets)
		tx.owned = make(map[string]bool)
		tx.private = true
	}
	b := tx.buckets[key]
	if b != nil && !tx.owned[key] {
		b = &memBucket{items: slices.Clone(b.items)}
		tx.buckets[key] = b
		tx.owned[key] = true
	}
	return b
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	if tx.closed {
		panic("tx is closed")
	}
	key := memBucketKey(name, sub)
	if tx.buckets[key] == nil {
		return nil
	}
	return memBucketHandle{tx: tx, key: key}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return nil, errReadOnly
	}
	for _, key := range []string{memBucketKey(name, ""), memBucketKey(name, sub)} {
		if tx.own(key) == nil {
			tx.buckets[key] = &memBucket{}
			tx.owned[key] = true
		}
	}
	return memBucketHandle{tx: tx, key: memBucketKey(name, sub)}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return errReadOnly
	}
	key := memBucketKey(name, sub)
	if sub == "" || tx.buckets[key] == nil {
		return ErrBucketNotFound
	}
	tx.own(key)
	delete(tx.buckets, key)
	return nil
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return errReadOnly
	}
	s := tx.base
	s.mu.Lock()
	closed := s.closed
	if !closed && tx.private {
		s.buckets = tx.buckets
	}
	s.mu.Unlock()
	tx.close()
	if closed {
		return errMemClosed
	}
	return nil
}

func (tx *memTx) Rollback() error {
	tx.close()
	return nil
}

func (tx *memTx) close() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer.Unlock()
	}
}

func (tx *memTx) Size() int64 { return 0 }

type memBucket struct {
	items []memKV // sorted by key
}

type memKV struct {
	key   []byte
	value []byte
}

// find returns the position of key, or where it would be inserted.
func (b *memBucket) find(key []byte) (int, bool) {
	i := sort.Search(len(b.items), func(i int) bool {
		return bytes.Compare(b.items[i].key, key) >= 0
	})
	return i, i < len(b.items) && bytes.Equal(b.items[i].key, key)
}

type memBucketHandle struct {
	tx  *memTx
	key string
}

func (h memBucketHandle) bucket() *memBucket {
	return h.tx.buckets[h.key]
}

func (h memBucketHandle) Get(key []byte) []byte {
	b := h.bucket()
	if i, ok := b.find(key); ok {
		return b.items[i].value
	}
	return nil
}

func (h memBucketHandle) Put(key, value []byte) error {
	if !h.tx.writable {
		return errReadOnly
	}
	b := h.tx.own(h.key)
	kv := memKV{slices.Clone(key), slices.Clone(value)}
	if i, ok := b.find(key); ok {
		b.items[i] = kv
	} else {
		b.items = slices.Insert(b.items, i, kv)
	}
	return nil
}

func (h memBucketHandle) Delete(key []byte) error {
	if !h.tx.writable {
		return errReadOnly
	}
	b := h.tx.own(h.key)
	if i, ok := b.find(key); ok {
		b.items = slices.Delete(b.items, i, i+1)
	}
	return nil
}

// Cursor iterates the bucket as it is when the cursor is created.
func (h memBucketHandle) Cursor() storageCursor {
	return &memCursor{items: h.bucket().items, pos: -1}
}

func (h memBucketHandle) Stats() bucketStats {
	var size int64
	items := h.bucket().items
	for _, kv := range items {
		size += int64(len(kv.key) + len(kv.value))
	}
	return bucketStats{KeyN: len(items), LeafInuse: size, LeafAlloc: size}
}

type memCursor struct {
	items []memKV
	pos   int
}

func (c *memCursor) at(i int) ([]byte, []byte) {
	c.pos = i
	if i < 0 || i >= len(c.items) {
		return nil, nil
	}
	return c.items[i].key, c.items[i].value
}

func (c *memCursor) First() ([]byte, []byte) { return c.at(0) }

func (c *memCursor) Last() ([]byte, []byte) { return c.at(len(c.items) - 1) }

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	b := memBucket{items: c.items}
	i, _ := b.find(seek)
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) { return c.at(c.pos + 1) }
