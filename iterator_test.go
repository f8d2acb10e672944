package calbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPolyTable creates a polynomial table with time buckets of 2, 3 and 1
// antennas.
func setupPolyTable(t testing.TB, s *Store, name string) Table {
	t.Helper()
	tbl := must(s.CreateTable(name, Schema{Kind: KindPolynomial, Index: antSpwTime}))
	must(tbl.AppendRows([]Record{
		polyRecord(0, 1, 0), polyRecord(1, 1, 0),
		polyRecord(0, 1, 1), polyRecord(1, 1, 1), polyRecord(2, 1, 1),
		polyRecord(0, 1, 2),
	}))
	return tbl
}

func TestTableIterator_Groups(t *testing.T) {
	tbl := setupPolyTable(t, setupMemStore(t), "t")
	it, err := NewTableIterator(tbl, IndexTimeBucket)
	require.NoError(t, err)
	assert.Same(t, tbl, it.Table())

	var sizes, groups []int
	for !it.AtEnd() {
		g, ok := it.Group()
		require.True(t, ok)
		groups = append(groups, g)
		rows := must(it.Rows())
		sel := must(it.Selection())
		assert.Equal(t, len(rows), sel.NRow())
		sizes = append(sizes, len(rows))
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []int{0, 1, 2}, groups)
	assert.Equal(t, []int{2, 3, 1}, sizes)

	_, ok := it.Group()
	assert.False(t, ok)
	assert.ErrorIs(t, it.Next(), ErrEndOfIteration)
	_, err = it.Rows()
	assert.ErrorIs(t, err, ErrEndOfIteration)
	_, err = it.Selection()
	assert.ErrorIs(t, err, ErrEndOfIteration)
}

func TestTableIterator_GroupsOnlyConsecutiveRows(t *testing.T) {
	tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindPlain, Index: antSpwTime}))
	must(tbl.AppendRows([]Record{plainRecord(0, 0, 0), plainRecord(0, 0, 1), plainRecord(1, 0, 0)}))

	it := must(NewTableIterator(tbl, IndexTimeBucket))
	var n int
	for ; !it.AtEnd(); n++ {
		require.NoError(t, it.Next())
	}
	assert.Equal(t, 3, n)
}

func TestTableIterator_RejectsUnknownGroupBy(t *testing.T) {
	tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindPlain, Index: antSpwTime}))
	_, err := NewTableIterator(tbl, IndexScanNo)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "SCAN_NO", ve.Field)
}

func TestTableIterator_EmptyTable(t *testing.T) {
	tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindPlain, Index: antSpwTime}))
	it := must(NewTableIterator(tbl, IndexAntenna1))
	assert.True(t, it.AtEnd())

	b := BindBuffer(it)
	_, err := b.NRow()
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrEndOfIteration)
}

func TestTableIterator_MovesInvalidateBoundBuffers(t *testing.T) {
	tbl := setupPolyTable(t, setupMemStore(t), "t")
	it := must(NewTableIterator(tbl, IndexTimeBucket))
	b := BindPolyBuffer(it)

	assert.Equal(t, 2, must(b.NRow()))
	require.NoError(t, b.FillMatchingRows([]int{0}, degree2Fit()))
	assert.Equal(t, 7, must(b.RefAnt())[0])

	require.NoError(t, it.Next())
	assert.Equal(t, 3, must(b.NRow()))
	assert.Equal(t, []int{0, 1, 2}, must(b.Index()).Column(IndexAntenna1))
	assert.Equal(t, []int{0, 0, 0}, must(b.RefAnt()), "edits do not survive a move")
	assert.Equal(t, []int{1, 1, 1}, must(b.NPolyAmp()))

	require.NoError(t, it.Next())
	assert.Equal(t, 1, must(b.NRow()))

	require.NoError(t, it.Next())
	_, err := b.Time()
	assert.ErrorIs(t, err, ErrEndOfIteration)
}

func TestTableIterator_ResetSeesAppendedRows(t *testing.T) {
	tbl := setupPolyTable(t, setupMemStore(t), "t")
	it := must(NewTableIterator(tbl, IndexSpwID))
	b := BindBuffer(it)
	assert.Equal(t, 6, must(b.NRow()))

	must(tbl.AppendRows([]Record{polyRecord(5, 1, 3)}))
	assert.Equal(t, 6, must(b.NRow()), "iterator reads the table once")

	require.NoError(t, it.Reset())
	assert.Equal(t, 7, must(b.NRow()))
}

func TestTableIterator_DetachCancelsWatch(t *testing.T) {
	tbl := setupPolyTable(t, setupMemStore(t), "t")
	it := must(NewTableIterator(tbl, IndexTimeBucket))
	b := BindSplineBuffer(it)
	other := BindBuffer(it)
	assert.Len(t, it.watchers, 2)

	// spline columns are missing from a polynomial table
	assert.ErrorIs(t, b.Detach(), ErrMissingColumns)
	assert.True(t, b.Bound())

	require.NoError(t, other.Detach())
	assert.Len(t, it.watchers, 1)
	require.NoError(t, it.Next())
	assert.Equal(t, 2, must(other.NRow()))
	assert.Equal(t, []int{0, 1}, must(other.Index()).Column(IndexAntenna1))
}

func TestTableIterator_FillAndCopy(t *testing.T) {
	s := setupStore(t, Options{Compress: true})
	src := setupPolyTable(t, s, "src")
	dst := must(s.CreateTable("dst", Schema{Kind: KindPolynomial, Index: antSpwTime}))

	it := must(NewTableIterator(src, IndexTimeBucket))
	b := BindPolyBuffer(it)
	for !it.AtEnd() {
		rows := must(b.MatchRows(IndexAntenna1, 1))
		require.NoError(t, b.FillMatchingRows(rows, degree2Fit()))
		must(b.Append(dst))
		require.NoError(t, it.Next())
	}

	out := must(dst.ReadRows(0, -1))
	require.Len(t, out, 6)
	for _, rec := range out {
		if rec.Index[0] == 1 {
			assert.Equal(t, 7, rec.RefAnt)
			assert.Equal(t, 2, rec.Poly.NPolyAmp)
		} else {
			assert.Equal(t, 0, rec.RefAnt)
			assert.Equal(t, 1, rec.Poly.NPolyAmp)
		}
	}

	// source rows are untouched
	for _, rec := range must(src.ReadRows(0, -1)) {
		assert.Equal(t, 0, rec.RefAnt)
	}
}
