package calbuf

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func forEachStorage(t *testing.T, f func(t *testing.T, st storage)) {
	t.Run("mem", func(t *testing.T) {
		st := newMemStorage()
		defer st.Close()
		f(t, st)
	})
	t.Run("bolt", func(t *testing.T) {
		bdb, err := bbolt.Open(filepath.Join(t.TempDir(), "s.db"), 0666, &bbolt.Options{NoSync: true})
		require.NoError(t, err)
		st := newBoltStorage(bdb)
		defer st.Close()
		f(t, st)
	})
}

func TestStorage_CursorOrderAndRollback(t *testing.T) {
	forEachStorage(t, func(t *testing.T, st storage) {
		require.NoError(t, update(st, func(tx storageTx) error {
			b := must(tx.CreateBucket("t", "rows"))
			for _, row := range []uint64{2, 0, 1} {
				ensure(b.Put(rowKey(row), []byte{byte(row)}))
			}
			return nil
		}))

		boom := errors.New("boom")
		err := update(st, func(tx storageTx) error {
			ensure(tx.Bucket("t", "rows").Put(rowKey(3), []byte{3}))
			ensure(tx.Bucket("t", "rows").Delete(rowKey(0)))
			return boom
		})
		require.ErrorIs(t, err, boom)

		require.NoError(t, view(st, func(tx storageTx) error {
			assert.False(t, tx.Writable())
			assert.Nil(t, tx.Bucket("t", "missing"))
			c := tx.Bucket("t", "rows").Cursor()
			var got []byte
			for k, v := c.First(); k != nil; k, v = c.Next() {
				got = append(got, v...)
			}
			assert.Equal(t, []byte{0, 1, 2}, got)

			k, _ := c.Last()
			assert.Equal(t, rowKey(2), k)
			k, v := c.Seek(rowKey(1))
			assert.Equal(t, rowKey(1), k)
			assert.Equal(t, []byte{1}, v)
			assert.Equal(t, 3, tx.Bucket("t", "rows").Stats().KeyN)
			return nil
		}))

		require.NoError(t, update(st, func(tx storageTx) error {
			return tx.DeleteBucket("t", "rows")
		}))
		err = update(st, func(tx storageTx) error {
			return tx.DeleteBucket("t", "rows")
		})
		assert.ErrorIs(t, err, ErrBucketNotFound)
	})
}

func TestMemStorage_ReadersKeepSnapshot(t *testing.T) {
	st := newMemStorage()
	defer st.Close()
	require.NoError(t, update(st, func(tx storageTx) error {
		return must(tx.CreateBucket("t", "")).Put([]byte("k"), []byte("old"))
	}))

	rtx := must(st.BeginTx(false))
	defer rtx.Rollback()

	require.NoError(t, update(st, func(tx storageTx) error {
		return tx.Bucket("t", "").Put([]byte("k"), []byte("new"))
	}))

	assert.Equal(t, []byte("old"), rtx.Bucket("t", "").Get([]byte("k")))
	require.NoError(t, view(st, func(tx storageTx) error {
		assert.Equal(t, []byte("new"), tx.Bucket("t", "").Get([]byte("k")))
		return nil
	}))

	err := rtx.Bucket("t", "").Put([]byte("x"), nil)
	assert.Error(t, err)
}

// readOnlyStorage hands out read-only transactions whatever is asked for.
type readOnlyStorage struct {
	storage
}

func (s readOnlyStorage) BeginTx(writable bool) (storageTx, error) {
	return s.storage.BeginTx(false)
}

func TestUpdate_RequiresWritableTx(t *testing.T) {
	forEachStorage(t, func(t *testing.T, st storage) {
		called := false
		err := update(readOnlyStorage{st}, func(tx storageTx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, errReadOnly)
		assert.False(t, called)

		require.NoError(t, update(st, func(tx storageTx) error {
			assert.True(t, tx.Writable())
			return nil
		}))
	})
}
