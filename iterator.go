package calbuf

import (
	"slices"
)

// Iterator walks calibration solution sets. Buffers only read from it; they
// never advance it.
type Iterator interface {
	// Rows returns the current row set. The buffer may keep the returned
	// slice, so implementations must not reuse it.
	Rows() ([]Record, error)
	// Next advances to the next row set.
	Next() error
	AtEnd() bool
	// Selection returns the index values of the current row set.
	Selection() (Selection, error)
}

// Invalidator is anything holding state derived from an iterator position.
type Invalidator interface {
	Invalidate() error
}

// Watcher is implemented by iterators that notify bound buffers when they
// move. Bind* functions subscribe automatically.
type Watcher interface {
	Watch(inv Invalidator) (cancel func())
}

// TableIterator walks a table in groups of consecutive rows sharing the same
// value of one index type. The table is read once, on construction or Reset.
type TableIterator struct {
	table   Table
	groupBy IndexType
	col     int
	rows    []Record
	start   int
	end     int

	watchers []*watch
}

type watch struct {
	inv Invalidator
}

var (
	_ Iterator = (*TableIterator)(nil)
	_ Watcher  = (*TableIterator)(nil)
)

// NewTableIterator reads t and positions the iterator at its first group.
func NewTableIterator(t Table, groupBy IndexType) (*TableIterator, error) {
	col := slices.Index(t.Schema().Index, groupBy)
	if col < 0 {
		return nil, validationErrf("iterate", groupBy.String(), "table %s has no such index", t.Name())
	}
	it := &TableIterator{table: t, groupBy: groupBy, col: col}
	if err := it.load(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *TableIterator) load() error {
	rows, err := it.table.ReadRows(0, -1)
	if err != nil {
		return err
	}
	it.rows = rows
	it.start = 0
	it.end = it.groupEnd(0)
	return nil
}

func (it *TableIterator) groupEnd(start int) int {
	end := start
	for end < len(it.rows) && it.rows[end].Index[it.col] == it.rows[start].Index[it.col] {
		end++
	}
	return end
}

// Table returns the table being iterated.
func (it *TableIterator) Table() Table {
	return it.table
}

func (it *TableIterator) AtEnd() bool {
	return it.start >= len(it.rows)
}

// Next moves to the following group and invalidates watchers.
func (it *TableIterator) Next() error {
	if it.AtEnd() {
		return stateErrf("next", ErrEndOfIteration, "")
	}
	it.start = it.end
	it.end = it.groupEnd(it.start)
	return it.notify()
}

// Reset rereads the table, rewinds to the first group and invalidates
// watchers. Rows appended since the last read become visible.
func (it *TableIterator) Reset() error {
	if err := it.load(); err != nil {
		return err
	}
	return it.notify()
}

// Group returns the value of the grouping index for the current group.
func (it *TableIterator) Group() (int, bool) {
	if it.AtEnd() {
		return 0, false
	}
	return it.rows[it.start].Index[it.col], true
}

func (it *TableIterator) Rows() ([]Record, error) {
	if it.AtEnd() {
		return nil, stateErrf("rows", ErrEndOfIteration, "")
	}
	return cloneRecords(it.rows[it.start:it.end]), nil
}

func (it *TableIterator) Selection() (Selection, error) {
	if it.AtEnd() {
		return Selection{}, stateErrf("selection", ErrEndOfIteration, "")
	}
	return selectionFromRows(it.table.Schema().Index, it.rows[it.start:it.end]), nil
}

func (it *TableIterator) Watch(inv Invalidator) func() {
	w := &watch{inv}
	it.watchers = append(it.watchers, w)
	return func() {
		if i := slices.Index(it.watchers, w); i >= 0 {
			it.watchers = slices.Delete(it.watchers, i, i+1)
		}
	}
}

func (it *TableIterator) notify() error {
	for _, w := range slices.Clone(it.watchers) {
		if err := w.inv.Invalidate(); err != nil {
			return err
		}
	}
	return nil
}
