package calbuf

import (
	"slices"
)

// Buffer caches a window of complex gain solution rows.
//
// A Buffer is either bound to an Iterator (see BindBuffer), in which case each
// column is read from the iterator's current row set on first access after
// construction or Invalidate, or detached (NewBuffer, NewBufferFor), in which
// case columns hold whatever was last written to them, starting from
// defaults.
//
// Accessors return the cached slices themselves: writing into them changes
// the buffer, and the change reaches a table on the next Append.
//
// A Buffer is not safe for concurrent use. A bound buffer must not outlive its
// iterator.
type Buffer struct {
	it     Iterator
	cancel func()

	nrow  Slot[int]
	index Slot[Selection]

	time          Slot[[]float64]
	interval      Slot[[]float64]
	freqGroupName Slot[[]string]
	refAnt        Slot[[]int]
	refFreq       Slot[[]float64]
	gain          Slot[[][]complex128]
	solnOK        Slot[[]bool]
	fit           Slot[[]float64]
}

// NewBuffer returns an empty detached buffer. The zero Buffer is equivalent.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferFor returns a detached buffer with one row per entry of sel and
// default values in all other columns.
func NewBufferFor(sel Selection) (*Buffer, error) {
	b := &Buffer{}
	if err := b.setSelection(sel); err != nil {
		return nil, err
	}
	return b, nil
}

// BindBuffer returns a buffer mirroring the current row set of it. If it
// implements Watcher, the buffer subscribes to be invalidated on every move.
func BindBuffer(it Iterator) *Buffer {
	b := &Buffer{}
	b.bind(it, b)
	return b
}

func (b *Buffer) setSelection(sel Selection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	sel = sel.Clone()
	b.index.Set(sel)
	b.nrow.Set(sel.NRow())
	return nil
}

func (b *Buffer) bind(it Iterator, outer Invalidator) {
	b.it = it
	if w, ok := it.(Watcher); ok {
		b.cancel = w.Watch(outer)
	}
}

func (b *Buffer) Kind() Kind {
	return KindPlain
}

// Bound reports whether the buffer reads through to an iterator.
func (b *Buffer) Bound() bool {
	return b.it != nil
}

// Invalidate drops every cached column, so that the next access refetches it
// from the iterator. It fails with StateError on a detached buffer.
func (b *Buffer) Invalidate() error {
	if b.it == nil {
		return stateErrf("invalidate", ErrUnbound, "")
	}
	b.nrow.Reset()
	b.index.Reset()
	b.time.Reset()
	b.interval.Reset()
	b.freqGroupName.Reset()
	b.refAnt.Reset()
	b.refFreq.Reset()
	b.gain.Reset()
	b.solnOK.Reset()
	b.fit.Reset()
	return nil
}

// Detach fetches every column, stops iterator notifications and turns the
// buffer into a detached one holding the fetched values.
func (b *Buffer) Detach() error {
	if b.it == nil {
		return stateErrf("detach", ErrUnbound, "")
	}
	if _, err := b.records(); err != nil {
		return err
	}
	b.unbind()
	return nil
}

func (b *Buffer) unbind() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.it = nil
}

// NRow returns the number of rows. On a bound buffer whose row count was
// invalidated this fetches the iterator's selection.
func (b *Buffer) NRow() (int, error) {
	return b.nrow.fill(func() (int, error) {
		sel, err := b.Index()
		if err != nil {
			return 0, err
		}
		return sel.NRow(), nil
	})
}

// Index returns the index columns of the buffer's rows.
func (b *Buffer) Index() (Selection, error) {
	return b.index.fill(func() (Selection, error) {
		if b.it == nil {
			return Selection{}, nil
		}
		sel, err := b.it.Selection()
		if err != nil {
			return Selection{}, stateErrf("fetch index", err, "")
		}
		if err := sel.Validate(); err != nil {
			return Selection{}, stateErrf("fetch index", err, "")
		}
		return sel, nil
	})
}

// MatchRows returns the ascending indices of rows whose index column t equals
// v, suitable as the matching rows of FillMatchingRows.
func (b *Buffer) MatchRows(t IndexType, v int) ([]int, error) {
	sel, err := b.Index()
	if err != nil {
		return nil, err
	}
	col := sel.Column(t)
	if col == nil && sel.NRow() > 0 {
		return nil, validationErrf("match rows", t.String(), "buffer has no such index")
	}
	var rows []int
	for r, x := range col {
		if x == v {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// column fills slot s on demand: from the iterator rows when bound, with
// def() for every row when detached.
func column[T any](b *Buffer, s *Slot[[]T], name string, def func() T, get func(rec *Record) (T, error)) ([]T, error) {
	return s.fill(func() ([]T, error) {
		n, err := b.NRow()
		if err != nil {
			return nil, err
		}
		col := make([]T, n)
		if b.it == nil {
			for i := range col {
				col[i] = def()
			}
			return col, nil
		}
		rows, err := b.it.Rows()
		if err != nil {
			return nil, stateErrf("fetch "+name, err, "")
		}
		if len(rows) != n {
			return nil, stateErrf("fetch "+name, ErrInconsistent, "iterator returned %d rows, selection has %d", len(rows), n)
		}
		for i := range rows {
			v, err := get(&rows[i])
			if err != nil {
				return nil, stateErrf("fetch "+name, err, "row %d", i)
			}
			col[i] = v
		}
		return col, nil
	})
}

func zero[T any]() T {
	var v T
	return v
}

func (b *Buffer) Time() ([]float64, error) {
	return column(b, &b.time, ColTime, zero[float64], func(rec *Record) (float64, error) {
		return rec.Time, nil
	})
}

func (b *Buffer) Interval() ([]float64, error) {
	return column(b, &b.interval, ColInterval, zero[float64], func(rec *Record) (float64, error) {
		return rec.Interval, nil
	})
}

func (b *Buffer) FreqGroupName() ([]string, error) {
	return column(b, &b.freqGroupName, ColFreqGroupName, zero[string], func(rec *Record) (string, error) {
		return rec.FreqGroupName, nil
	})
}

// RefAnt defaults to -1 (no reference antenna).
func (b *Buffer) RefAnt() ([]int, error) {
	return column(b, &b.refAnt, ColRefAnt, func() int { return -1 }, func(rec *Record) (int, error) {
		return rec.RefAnt, nil
	})
}

func (b *Buffer) RefFreq() ([]float64, error) {
	return column(b, &b.refFreq, ColRefFreq, zero[float64], func(rec *Record) (float64, error) {
		return rec.RefFreq, nil
	})
}

// Gain holds one complex gain per receptor for each row.
func (b *Buffer) Gain() ([][]complex128, error) {
	return column(b, &b.gain, ColGain, zero[[]complex128], func(rec *Record) ([]complex128, error) {
		return rec.Gain, nil
	})
}

func (b *Buffer) SolnOK() ([]bool, error) {
	return column(b, &b.solnOK, ColSolnOK, zero[bool], func(rec *Record) (bool, error) {
		return rec.SolnOK, nil
	})
}

func (b *Buffer) Fit() ([]float64, error) {
	return column(b, &b.fit, ColFit, zero[float64], func(rec *Record) (float64, error) {
		return rec.Fit, nil
	})
}

// Append writes the buffer's rows after the last row of t and returns the row
// number of the first one. The buffer is unchanged.
func (b *Buffer) Append(t Table) (int, error) {
	return b.appendTo(t, b.Kind(), b.records)
}

func (b *Buffer) appendTo(t Table, kind Kind, records func() ([]Record, error)) (int, error) {
	const op = "append"
	n, err := b.NRow()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, stateErrf(op, ErrEmpty, "")
	}
	sel, err := b.Index()
	if err != nil {
		return 0, err
	}
	want := Schema{Kind: kind, Index: sel.Types}
	if got := t.Schema(); !got.Equal(want) {
		return 0, persistenceErrf(t.Name(), op, ErrSchemaMismatch, "table is %v, buffer is %v", got, want)
	}
	recs, err := records()
	if err != nil {
		return 0, err
	}
	return t.AppendRows(recs)
}

// records fetches every column and copies the rows out.
func (b *Buffer) records() ([]Record, error) {
	n, err := b.NRow()
	if err != nil {
		return nil, err
	}
	sel, err := b.Index()
	if err != nil {
		return nil, err
	}
	if err := sel.Validate(); err != nil {
		return nil, stateErrf("collect rows", ErrInconsistent, "invalid index (%w)", err)
	}
	if sel.NRow() != n {
		return nil, stateErrf("collect rows", ErrInconsistent, "index has %d rows, buffer has %d", sel.NRow(), n)
	}
	time, err := b.Time()
	if err != nil {
		return nil, err
	}
	interval, err := b.Interval()
	if err != nil {
		return nil, err
	}
	fgn, err := b.FreqGroupName()
	if err != nil {
		return nil, err
	}
	refAnt, err := b.RefAnt()
	if err != nil {
		return nil, err
	}
	refFreq, err := b.RefFreq()
	if err != nil {
		return nil, err
	}
	gain, err := b.Gain()
	if err != nil {
		return nil, err
	}
	solnOK, err := b.SolnOK()
	if err != nil {
		return nil, err
	}
	fit, err := b.Fit()
	if err != nil {
		return nil, err
	}
	if err := checkLengths(n, []columnLen{
		{ColTime, len(time)}, {ColInterval, len(interval)}, {ColFreqGroupName, len(fgn)},
		{ColRefAnt, len(refAnt)}, {ColRefFreq, len(refFreq)}, {ColGain, len(gain)},
		{ColSolnOK, len(solnOK)}, {ColFit, len(fit)},
	}); err != nil {
		return nil, err
	}

	recs := make([]Record, n)
	for r := range recs {
		recs[r] = Record{
			Index:         sel.Row(r),
			Time:          time[r],
			Interval:      interval[r],
			FreqGroupName: fgn[r],
			RefAnt:        refAnt[r],
			RefFreq:       refFreq[r],
			Gain:          slices.Clone(gain[r]),
			SolnOK:        solnOK[r],
			Fit:           fit[r],
		}
	}
	return recs, nil
}

type columnLen struct {
	name string
	n    int
}

// checkLengths reports the first column, in the order given, whose length is not n.
func checkLengths(n int, cols []columnLen) error {
	for _, c := range cols {
		if c.n != n {
			return stateErrf("collect rows", ErrInconsistent, "column %s has %d rows, buffer has %d", c.name, c.n, n)
		}
	}
	return nil
}

// checkMatchingRows verifies rows is strictly ascending and within [0, n).
func checkMatchingRows(op string, rows []int, n int) error {
	for i := 1; i < len(rows); i++ {
		if rows[i] <= rows[i-1] {
			return validationErrf(op, "matchingRows", "rows must be strictly ascending, got %d after %d", rows[i], rows[i-1])
		}
	}
	for _, r := range rows {
		if r < 0 || r >= n {
			return &IndexError{Op: op, Row: r, NRow: n}
		}
	}
	return nil
}
