package calbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func degree2Fit() PolyFit {
	return PolyFit{
		FreqGroupName:  "L-band",
		PolyType:       PolyChebyshev,
		PolyMode:       PolyModeAmpPhase,
		ScaleFactor:    complex(0.5, 0.5),
		NPolyAmp:       2,
		NPolyPhase:     1,
		PolyCoeffAmp:   mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
		PolyCoeffPhase: mat.NewDense(2, 2, []float64{0.1, 0.2, 0.3, 0.4}),
		PhaseUnits:     "DEGREES",
		RefFreq:        1.5e9,
		RefAnt:         7,
	}
}

func TestPolyBuffer_DetachedDefaults(t *testing.T) {
	b := must(NewPolyBufferFor(threeRowSelection(t)))
	assert.Equal(t, KindPolynomial, b.Kind())

	assert.Equal(t, []PolyType{"", "", ""}, must(b.PolyType()))
	assert.Equal(t, []PolyMode{"", "", ""}, must(b.PolyMode()))
	assert.Equal(t, []complex128{1, 1, 1}, must(b.ScaleFactor()))
	assert.Equal(t, []int{0, 0, 0}, must(b.NPolyAmp()))
	assert.Equal(t, []int{0, 0, 0}, must(b.NPolyPhase()))
	assert.Equal(t, []string{"", "", ""}, must(b.PhaseUnits()))

	coeffs := must(b.PolyCoeffAmp())
	require.Len(t, coeffs, 3)
	for _, c := range coeffs {
		r, cols := c.Dims()
		assert.Equal(t, 1, r)
		assert.Equal(t, 1, cols)
	}
	assert.NotSame(t, coeffs[0], coeffs[1])
}

func TestPolyBuffer_FillMatchingRows(t *testing.T) {
	b := must(NewPolyBufferFor(threeRowSelection(t)))
	fit := degree2Fit()
	require.NoError(t, b.FillMatchingRows([]int{0, 2}, fit))

	for _, r := range []int{0, 2} {
		assert.Equal(t, PolyChebyshev, must(b.PolyType())[r])
		assert.Equal(t, PolyModeAmpPhase, must(b.PolyMode())[r])
		assert.Equal(t, complex(0.5, 0.5), must(b.ScaleFactor())[r])
		assert.Equal(t, 2, must(b.NPolyAmp())[r])
		assert.Equal(t, 1, must(b.NPolyPhase())[r])
		assert.True(t, mat.Equal(fit.PolyCoeffAmp, must(b.PolyCoeffAmp())[r]))
		assert.True(t, mat.Equal(fit.PolyCoeffPhase, must(b.PolyCoeffPhase())[r]))
		assert.Equal(t, "DEGREES", must(b.PhaseUnits())[r])
		assert.Equal(t, 1.5e9, must(b.RefFreq())[r])
		assert.Equal(t, 7, must(b.RefAnt())[r])
		assert.Equal(t, "L-band", must(b.FreqGroupName())[r])
	}

	// row 1 is untouched
	assert.Equal(t, PolyType(""), must(b.PolyType())[1])
	assert.Equal(t, 0, must(b.NPolyAmp())[1])
	assert.Equal(t, -1, must(b.RefAnt())[1])
	r, _ := must(b.PolyCoeffAmp())[1].Dims()
	assert.Equal(t, 1, r)

	// rows hold copies of the caller's matrices
	fit.PolyCoeffAmp.Set(0, 0, 99)
	assert.Equal(t, 1.0, must(b.PolyCoeffAmp())[0].At(0, 0))
	must(b.PolyCoeffAmp())[0].Set(0, 0, 42)
	assert.Equal(t, 1.0, must(b.PolyCoeffAmp())[2].At(0, 0))
}

func TestPolyBuffer_FillMatchingRowsValidation(t *testing.T) {
	b := must(NewPolyBufferFor(threeRowSelection(t)))

	tests := []struct {
		name string
		rows []int
		edit func(fit *PolyFit)
	}{
		{"too few amp coefficients", []int{0, 2}, func(fit *PolyFit) {
			fit.PolyCoeffAmp = mat.NewDense(2, 2, nil)
		}},
		{"too many phase coefficients", []int{0}, func(fit *PolyFit) {
			fit.PolyCoeffPhase = mat.NewDense(3, 2, nil)
		}},
		{"negative degree", []int{0}, func(fit *PolyFit) {
			fit.NPolyAmp = -1
		}},
		{"missing coefficients", []int{0}, func(fit *PolyFit) {
			fit.PolyCoeffPhase = nil
		}},
		{"receptor mismatch", []int{0}, func(fit *PolyFit) {
			fit.PolyCoeffPhase = mat.NewDense(2, 1, nil)
		}},
		{"descending rows", []int{2, 0}, func(fit *PolyFit) {}},
		{"duplicate rows", []int{1, 1}, func(fit *PolyFit) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit := degree2Fit()
			tt.edit(&fit)
			err := b.FillMatchingRows(tt.rows, fit)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)

			assert.Equal(t, []int{0, 0, 0}, must(b.NPolyAmp()), "failed fill must not write")
			assert.Equal(t, []int{-1, -1, -1}, must(b.RefAnt()))
		})
	}
}

func TestPolyBuffer_FillMatchingRowsOutOfRange(t *testing.T) {
	b := must(NewPolyBufferFor(threeRowSelection(t)))
	for _, rows := range [][]int{{0, 3}, {-1}} {
		err := b.FillMatchingRows(rows, degree2Fit())
		var ie *IndexError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, 3, ie.NRow)
	}
	assert.Equal(t, []PolyType{"", "", ""}, must(b.PolyType()))

	var ve *ValidationError
	require.ErrorAs(t, b.FillMatchingRows(nil, PolyFit{}), &ve, "fit shapes are checked even without rows")
	bad := degree2Fit()
	bad.PolyCoeffAmp = mat.NewDense(2, 2, nil)
	require.ErrorAs(t, b.FillMatchingRows(nil, bad), &ve)
	require.ErrorAs(t, b.FillMatchingRows([]int{}, bad), &ve)
	require.NoError(t, b.FillMatchingRows(nil, degree2Fit()))

	var ie *IndexError
	require.ErrorAs(t, NewPolyBuffer().FillMatchingRows([]int{0}, degree2Fit()), &ie)
	assert.NoError(t, NewPolyBuffer().FillMatchingRows(nil, degree2Fit()))
}

func TestPolyBuffer_AppendRoundTrip(t *testing.T) {
	s := setupStore(t, Options{Compress: true})
	tbl := must(s.CreateTable("poly", Schema{Kind: KindPolynomial, Index: antSpwTime}))

	b := must(NewPolyBufferFor(threeRowSelection(t)))
	require.NoError(t, b.FillMatchingRows([]int{1}, degree2Fit()))
	first, err := b.Append(tbl)
	require.NoError(t, err)
	assert.Equal(t, 0, first)

	rows := must(tbl.ReadRows(0, -1))
	require.Len(t, rows, 3)
	require.NotNil(t, rows[1].Poly)
	assert.Equal(t, 2, rows[1].Poly.NPolyAmp)
	assert.True(t, mat.Equal(degree2Fit().PolyCoeffAmp, rows[1].Poly.PolyCoeffAmp))
	assert.Equal(t, 7, rows[1].RefAnt)
	assert.Equal(t, complex128(1), rows[0].Poly.ScaleFactor)

	// a plain table does not accept polynomial rows
	plain := must(s.CreateTable("plain", Schema{Kind: KindPlain, Index: antSpwTime}))
	_, err = b.Append(plain)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	_, err = b.Buffer.Append(tbl)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestPolyBuffer_AppendInconsistentColumns(t *testing.T) {
	b := must(NewPolyBufferFor(threeRowSelection(t)))
	sel := must(b.Index())
	sel.Values[0] = []int{0, 1}

	tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindPolynomial, Index: antSpwTime}))
	_, err := b.Append(tbl)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrInconsistent)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve, "the selection error is kept as the cause")
	assert.Contains(t, err.Error(), "invalid index")
	assert.Zero(t, must(tbl.NRow()))

	sel.Values[0] = []int{0, 1, 2}
	b.polyMode.Set([]PolyMode{"", ""})
	b.phaseUnits.Set([]string{""})
	_, err = b.Append(tbl)
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "column POLY_MODE has 2 rows", "first short column in column order")
	assert.Zero(t, must(tbl.NRow()))
}

func TestPolyBuffer_AppendRejectsEditedCoefficientShapes(t *testing.T) {
	tests := []struct {
		name string
		edit func(b *PolyBuffer)
	}{
		{"amp degree without coefficients", func(b *PolyBuffer) {
			must(b.NPolyAmp())[0] = 3
		}},
		{"phase coefficients too tall", func(b *PolyBuffer) {
			must(b.PolyCoeffPhase())[2] = mat.NewDense(2, 1, nil)
		}},
		{"missing amp matrix", func(b *PolyBuffer) {
			must(b.PolyCoeffAmp())[1] = nil
		}},
		{"negative phase degree", func(b *PolyBuffer) {
			must(b.NPolyPhase())[1] = -1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindPolynomial, Index: antSpwTime}))
			b := must(NewPolyBufferFor(threeRowSelection(t)))
			tt.edit(b)

			_, err := b.Append(tbl)
			var se *StateError
			require.ErrorAs(t, err, &se)
			assert.ErrorIs(t, err, ErrInconsistent)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Zero(t, must(tbl.NRow()))
		})
	}

	// a row edited consistently is accepted
	tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindPolynomial, Index: antSpwTime}))
	b := must(NewPolyBufferFor(threeRowSelection(t)))
	must(b.NPolyAmp())[0] = 1
	must(b.PolyCoeffAmp())[0] = mat.NewDense(2, 1, []float64{1, 2})
	_, err := b.Append(tbl)
	require.NoError(t, err)
	assert.Equal(t, 3, must(tbl.NRow()))
}

func TestPolyBuffer_BoundRequiresPolyRows(t *testing.T) {
	it := &fakeIterator{types: antSpwTime, groups: [][]Record{{plainRecord(0, 0, 0)}}}
	b := BindPolyBuffer(it)

	assert.Equal(t, []float64{1.4e9}, must(b.RefFreq()))
	_, err := b.PolyType()
	assert.ErrorIs(t, err, ErrMissingColumns)
	err = b.FillMatchingRows([]int{0}, degree2Fit())
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestPolyBuffer_InvalidateClearsPolyColumns(t *testing.T) {
	it := &fakeIterator{types: antSpwTime, groups: [][]Record{{polyRecord(0, 0, 0), polyRecord(1, 0, 0)}}}
	b := BindPolyBuffer(it)

	require.NoError(t, b.FillMatchingRows([]int{1}, degree2Fit()))
	assert.Equal(t, []int{1, 2}, must(b.NPolyAmp()))

	require.NoError(t, b.Invalidate())
	assert.Equal(t, []int{1, 1}, must(b.NPolyAmp()))
	assert.Equal(t, []int{0, 0}, must(b.RefAnt()))
}
