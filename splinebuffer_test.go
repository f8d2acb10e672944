package calbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func splineFit(knots []float64) SplineFit {
	fit := degree2Fit()
	fit.PolyType = PolySpline
	return SplineFit{
		PolyFit:          fit,
		NKnotsAmp:        len(knots),
		NKnotsPhase:      2,
		SplineKnotsAmp:   knots,
		SplineKnotsPhase: []float64{0, 5},
	}
}

func TestSplineBuffer_DetachedDefaults(t *testing.T) {
	b := must(NewSplineBufferFor(threeRowSelection(t)))
	assert.Equal(t, KindSpline, b.Kind())
	assert.Equal(t, []int{0, 0, 0}, must(b.NKnotsAmp()))
	assert.Equal(t, []int{0, 0, 0}, must(b.NKnotsPhase()))
	assert.Equal(t, [][]float64{nil, nil, nil}, must(b.SplineKnotsAmp()))
	assert.Equal(t, [][]float64{nil, nil, nil}, must(b.SplineKnotsPhase()))
	assert.Equal(t, []complex128{1, 1, 1}, must(b.ScaleFactor()))
}

func TestSplineBuffer_FillMatchingRows(t *testing.T) {
	b := must(NewSplineBufferFor(threeRowSelection(t)))
	knots := []float64{0.0, 2.5, 5.0}
	require.NoError(t, b.FillMatchingRows([]int{1}, splineFit(knots)))

	assert.Equal(t, []int{0, 3, 0}, must(b.NKnotsAmp()))
	assert.Equal(t, []int{0, 2, 0}, must(b.NKnotsPhase()))
	assert.Equal(t, [][]float64{nil, {0, 2.5, 5}, nil}, must(b.SplineKnotsAmp()))
	assert.Equal(t, []PolyType{"", PolySpline, ""}, must(b.PolyType()))
	assert.Equal(t, []int{0, 2, 0}, must(b.NPolyAmp()))

	knots[0] = -1
	assert.Equal(t, 0.0, must(b.SplineKnotsAmp())[1][0])
}

func TestSplineBuffer_FillRejectsBadKnots(t *testing.T) {
	b := must(NewSplineBufferFor(threeRowSelection(t)))

	tests := []struct {
		name string
		fit  SplineFit
	}{
		{"non-monotonic", splineFit([]float64{0.0, 5.0, 3.0})},
		{"count mismatch", func() SplineFit {
			fit := splineFit([]float64{0, 1})
			fit.NKnotsAmp = 3
			return fit
		}()},
		{"non-monotonic phase", func() SplineFit {
			fit := splineFit([]float64{0, 1})
			fit.SplineKnotsPhase = []float64{5, 0}
			return fit
		}()},
		{"negative count", func() SplineFit {
			fit := splineFit(nil)
			fit.NKnotsPhase = -2
			return fit
		}()},
		{"bad polynomial part", func() SplineFit {
			fit := splineFit([]float64{0, 1})
			fit.PolyCoeffAmp = mat.NewDense(1, 2, nil)
			return fit
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.FillMatchingRows([]int{0, 2}, tt.fit)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, []int{0, 0, 0}, must(b.NKnotsAmp()))
			assert.Equal(t, []PolyType{"", "", ""}, must(b.PolyType()))
		})
	}

	require.NoError(t, b.FillMatchingRows([]int{0, 2}, splineFit([]float64{0.0, 2.5, 5.0})))
	require.NoError(t, b.FillMatchingRows([]int{1}, splineFit([]float64{1, 1, 1})), "equal knots are allowed")
}

func TestSplineBuffer_AppendRoundTrip(t *testing.T) {
	s := setupStore(t, Options{})
	tbl := must(s.CreateTable("spline", Schema{Kind: KindSpline, Index: antSpwTime}))

	b := must(NewSplineBufferFor(threeRowSelection(t)))
	require.NoError(t, b.FillMatchingRows([]int{0, 1, 2}, splineFit([]float64{0, 1, 4})))
	must(b.Append(tbl))
	first := must(b.Append(tbl))
	assert.Equal(t, 3, first)

	rows := must(tbl.ReadRows(0, -1))
	require.Len(t, rows, 6)
	for i, rec := range rows {
		require.NotNil(t, rec.Spline)
		assert.Equal(t, []float64{0, 1, 4}, rec.Spline.SplineKnotsAmp)
		assert.Equal(t, 3, rec.Spline.NKnotsAmp)
		assert.Equal(t, PolySpline, rec.Poly.Type)
		assert.Equal(t, []int{i % 3, 5, 9}, rec.Index)
	}

	poly := must(s.CreateTable("poly", Schema{Kind: KindPolynomial, Index: antSpwTime}))
	_, err := b.Append(poly)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	_, err = b.PolyBuffer.Append(poly)
	assert.NoError(t, err)
}

func TestSplineBuffer_AppendRejectsEditedKnots(t *testing.T) {
	tests := []struct {
		name string
		edit func(b *SplineBuffer)
	}{
		{"poly degree without coefficients", func(b *SplineBuffer) {
			must(b.NPolyAmp())[0] = 3
		}},
		{"knot count without knots", func(b *SplineBuffer) {
			must(b.NKnotsAmp())[1] = 2
		}},
		{"descending phase knots", func(b *SplineBuffer) {
			must(b.NKnotsPhase())[2] = 3
			must(b.SplineKnotsPhase())[2] = []float64{0, 5, 3}
		}},
		{"knots without count", func(b *SplineBuffer) {
			must(b.SplineKnotsAmp())[0] = []float64{1, 2}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindSpline, Index: antSpwTime}))
			b := must(NewSplineBufferFor(threeRowSelection(t)))
			tt.edit(b)

			_, err := b.Append(tbl)
			var se *StateError
			require.ErrorAs(t, err, &se)
			assert.ErrorIs(t, err, ErrInconsistent)
			assert.Zero(t, must(tbl.NRow()))
		})
	}

	tbl := must(setupMemStore(t).CreateTable("t", Schema{Kind: KindSpline, Index: antSpwTime}))
	b := must(NewSplineBufferFor(threeRowSelection(t)))
	must(b.NKnotsPhase())[2] = 3
	must(b.SplineKnotsPhase())[2] = []float64{0, 3, 3}
	_, err := b.Append(tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 3}, must(tbl.ReadRows(2, 1))[0].Spline.SplineKnotsPhase)
}

func TestSplineBuffer_FillRejectsBadFitWithoutRows(t *testing.T) {
	b := must(NewSplineBufferFor(threeRowSelection(t)))
	var ve *ValidationError
	require.ErrorAs(t, b.FillMatchingRows(nil, splineFit([]float64{0, 5, 3})), &ve)
	require.NoError(t, b.FillMatchingRows(nil, splineFit([]float64{0, 5})))
	assert.Equal(t, []int{0, 0, 0}, must(b.NKnotsAmp()))
}

func TestSplineBuffer_InvalidateClearsAllLevels(t *testing.T) {
	it := &fakeIterator{types: antSpwTime, groups: [][]Record{{splineRecord(0, 0, 0)}}}
	b := BindSplineBuffer(it)

	require.NoError(t, b.FillMatchingRows([]int{0}, splineFit([]float64{7, 8})))
	assert.Equal(t, []int{2}, must(b.NKnotsAmp()))
	assert.Equal(t, []int{7}, must(b.RefAnt()))

	require.NoError(t, b.Invalidate())
	assert.Equal(t, []int{3}, must(b.NKnotsAmp()))
	assert.Equal(t, []int{1}, must(b.NPolyAmp()))
	assert.Equal(t, []int{0}, must(b.RefAnt()))

	require.NoError(t, b.Detach())
	assert.ErrorIs(t, b.Invalidate(), ErrUnbound)
	assert.Equal(t, [][]float64{{0, 1, 2}}, must(b.SplineKnotsAmp()))
}
