package calbuf

import (
	"fmt"
)

// Table is an append-only sequence of calibration rows. Implementations must
// make AppendRows all-or-nothing.
type Table interface {
	// Name is used in error messages.
	Name() string
	Schema() Schema
	NRow() (int, error)
	// AppendRows writes recs after the last row and returns the row number of
	// the first one written.
	AppendRows(recs []Record) (int, error)
	ReadRows(start, n int) ([]Record, error)
}

// StoredTable is a Table persisted in a Store.
type StoredTable struct {
	store  *Store
	name   string
	schema Schema
}

var _ Table = (*StoredTable)(nil)

func (t *StoredTable) Name() string   { return t.name }
func (t *StoredTable) Schema() Schema { return t.schema }

func (t *StoredTable) rows(tx storageTx) (storageBucket, error) {
	b := tx.Bucket(t.name, rowsBucket)
	if b == nil {
		return nil, ErrTableNotFound
	}
	return b, nil
}

// nextRow returns the number of rows, which is also the next row number.
func nextRow(b storageBucket) (uint64, error) {
	k, _ := b.Cursor().Last()
	if k == nil {
		return 0, nil
	}
	last, err := decodeRowKey(k)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (t *StoredTable) NRow() (int, error) {
	var n uint64
	err := view(t.store.st, func(tx storageTx) error {
		b, err := t.rows(tx)
		if err != nil {
			return err
		}
		n, err = nextRow(b)
		return err
	})
	if err != nil {
		return 0, persistenceErrf(t.name, "count rows", err, "")
	}
	return int(n), nil
}

// AppendRows validates every record against the table schema, then writes all
// of them in a single transaction.
func (t *StoredTable) AppendRows(recs []Record) (int, error) {
	const op = "append"
	for i := range recs {
		if err := t.checkRecord(&recs[i]); err != nil {
			return 0, persistenceErrf(t.name, op, ErrSchemaMismatch, "row %d: %v", i, err)
		}
	}
	var first uint64
	err := update(t.store.st, func(tx storageTx) error {
		b, err := t.rows(tx)
		if err != nil {
			return err
		}
		first, err = nextRow(b)
		if err != nil {
			return err
		}
		var buf []byte
		for i := range recs {
			buf = encodeRow(buf[:0], &recs[i], t.store.compress)
			if err := b.Put(rowKey(first+uint64(i)), append([]byte(nil), buf...)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, persistenceErrf(t.name, op, err, "")
	}
	if t.store.verbose {
		t.store.logger.Debug("calbuf: rows appended", "table", t.name, "first", first, "count", len(recs))
	}
	return int(first), nil
}

func (t *StoredTable) checkRecord(rec *Record) error {
	if len(rec.Index) != len(t.schema.Index) {
		return fmt.Errorf("%d index values, wanted %d", len(rec.Index), len(t.schema.Index))
	}
	if k := rec.Kind(); k != t.schema.Kind {
		return fmt.Errorf("%v record in %v table", k, t.schema.Kind)
	}
	if rec.Spline != nil && rec.Poly == nil {
		return fmt.Errorf("spline record without polynomial columns")
	}
	return nil
}

// ReadRows returns up to n rows starting at start. A negative n reads to the
// end of the table.
func (t *StoredTable) ReadRows(start, n int) ([]Record, error) {
	const op = "read"
	if start < 0 {
		return nil, persistenceErrf(t.name, op, fmt.Errorf("negative start %d", start), "")
	}
	var result []Record
	err := view(t.store.st, func(tx storageTx) error {
		b, err := t.rows(tx)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, v := c.Seek(rowKey(uint64(start))); k != nil && (n < 0 || len(result) < n); k, v = c.Next() {
			rec, err := decodeRow(v)
			if err != nil {
				row, _ := decodeRowKey(k)
				return fmt.Errorf("row %d: %w", row, err)
			}
			result = append(result, rec)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceErrf(t.name, op, err, "")
	}
	return result, nil
}

type TableStats struct {
	Rows      int
	DataSize  int64
	DataAlloc int64
	FileSize  int64
}

// Stats reports the row count and storage usage of a table. FileSize is zero
// for in-memory stores.
func (t *StoredTable) Stats() (TableStats, error) {
	var ts TableStats
	err := view(t.store.st, func(tx storageTx) error {
		b, err := t.rows(tx)
		if err != nil {
			return err
		}
		bs := b.Stats()
		ts = TableStats{
			Rows:      bs.KeyN,
			DataSize:  bs.LeafInuse,
			DataAlloc: bs.TotalAlloc(),
			FileSize:  tx.Size(),
		}
		return nil
	})
	if err != nil {
		return TableStats{}, persistenceErrf(t.name, "stats", err, "")
	}
	return ts, nil
}
