package calbuf

import (
	"slices"
)

// SplineBuffer is a PolyBuffer whose rows also carry the knot positions of
// amplitude and phase splines.
type SplineBuffer struct {
	PolyBuffer

	nKnotsAmp        Slot[[]int]
	nKnotsPhase      Slot[[]int]
	splineKnotsAmp   Slot[[][]float64]
	splineKnotsPhase Slot[[][]float64]
}

// SplineFit extends PolyFit with knots. Each knot slice must have exactly
// as many entries as its count and be non-decreasing.
type SplineFit struct {
	PolyFit
	NKnotsAmp        int
	NKnotsPhase      int
	SplineKnotsAmp   []float64
	SplineKnotsPhase []float64
}

func NewSplineBuffer() *SplineBuffer {
	return &SplineBuffer{}
}

func NewSplineBufferFor(sel Selection) (*SplineBuffer, error) {
	b := &SplineBuffer{}
	if err := b.setSelection(sel); err != nil {
		return nil, err
	}
	return b, nil
}

func BindSplineBuffer(it Iterator) *SplineBuffer {
	b := &SplineBuffer{}
	b.bind(it, b)
	return b
}

func (b *SplineBuffer) Kind() Kind {
	return KindSpline
}

func (b *SplineBuffer) Invalidate() error {
	if err := b.PolyBuffer.Invalidate(); err != nil {
		return err
	}
	b.nKnotsAmp.Reset()
	b.nKnotsPhase.Reset()
	b.splineKnotsAmp.Reset()
	b.splineKnotsPhase.Reset()
	return nil
}

func (b *SplineBuffer) Detach() error {
	if b.it == nil {
		return stateErrf("detach", ErrUnbound, "")
	}
	if _, err := b.records(); err != nil {
		return err
	}
	b.unbind()
	return nil
}

func splineOf(rec *Record) (*SplineRecord, error) {
	if rec.Spline == nil {
		return nil, ErrMissingColumns
	}
	return rec.Spline, nil
}

func (b *SplineBuffer) NKnotsAmp() ([]int, error) {
	return column(&b.Buffer, &b.nKnotsAmp, ColNKnotsAmp, zero[int], func(rec *Record) (int, error) {
		s, err := splineOf(rec)
		if err != nil {
			return 0, err
		}
		return s.NKnotsAmp, nil
	})
}

func (b *SplineBuffer) NKnotsPhase() ([]int, error) {
	return column(&b.Buffer, &b.nKnotsPhase, ColNKnotsPhase, zero[int], func(rec *Record) (int, error) {
		s, err := splineOf(rec)
		if err != nil {
			return 0, err
		}
		return s.NKnotsPhase, nil
	})
}

func (b *SplineBuffer) SplineKnotsAmp() ([][]float64, error) {
	return column(&b.Buffer, &b.splineKnotsAmp, ColSplineKnotsAmp, zero[[]float64], func(rec *Record) ([]float64, error) {
		s, err := splineOf(rec)
		if err != nil {
			return nil, err
		}
		return s.SplineKnotsAmp, nil
	})
}

func (b *SplineBuffer) SplineKnotsPhase() ([][]float64, error) {
	return column(&b.Buffer, &b.splineKnotsPhase, ColSplineKnotsPhase, zero[[]float64], func(rec *Record) ([]float64, error) {
		s, err := splineOf(rec)
		if err != nil {
			return nil, err
		}
		return s.SplineKnotsPhase, nil
	})
}

type splineColumns struct {
	nKnotsAmp        []int
	nKnotsPhase      []int
	splineKnotsAmp   [][]float64
	splineKnotsPhase [][]float64
}

func (b *SplineBuffer) fetchSplineColumns() (*splineColumns, error) {
	var c splineColumns
	var err error
	if c.nKnotsAmp, err = b.NKnotsAmp(); err != nil {
		return nil, err
	}
	if c.nKnotsPhase, err = b.NKnotsPhase(); err != nil {
		return nil, err
	}
	if c.splineKnotsAmp, err = b.SplineKnotsAmp(); err != nil {
		return nil, err
	}
	if c.splineKnotsPhase, err = b.SplineKnotsPhase(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *splineColumns) checkLengths(n int) error {
	return checkLengths(n, []columnLen{
		{ColNKnotsAmp, len(c.nKnotsAmp)}, {ColNKnotsPhase, len(c.nKnotsPhase)},
		{ColSplineKnotsAmp, len(c.splineKnotsAmp)}, {ColSplineKnotsPhase, len(c.splineKnotsPhase)},
	})
}

func (fit *SplineFit) validate(op string) error {
	if err := fit.PolyFit.validate(op); err != nil {
		return err
	}
	if err := checkKnots(op, ColSplineKnotsAmp, fit.NKnotsAmp, fit.SplineKnotsAmp); err != nil {
		return err
	}
	return checkKnots(op, ColSplineKnotsPhase, fit.NKnotsPhase, fit.SplineKnotsPhase)
}

func checkKnots(op, field string, n int, knots []float64) error {
	if n < 0 {
		return validationErrf(op, field, "negative knot count %d", n)
	}
	if len(knots) != n {
		return validationErrf(op, field, "%d knots, wanted %d", len(knots), n)
	}
	for i := 1; i < len(knots); i++ {
		if !(knots[i] >= knots[i-1]) {
			return validationErrf(op, field, "knot %d (%g) is before knot %d (%g)", i, knots[i], i-1, knots[i-1])
		}
	}
	return nil
}

func (fit *SplineFit) apply(pc *polyColumns, sc *splineColumns, r int) {
	fit.PolyFit.apply(pc, r)
	sc.nKnotsAmp[r] = fit.NKnotsAmp
	sc.nKnotsPhase[r] = fit.NKnotsPhase
	sc.splineKnotsAmp[r] = slices.Clone(fit.SplineKnotsAmp)
	sc.splineKnotsPhase[r] = slices.Clone(fit.SplineKnotsPhase)
}

// FillMatchingRows is PolyBuffer.FillMatchingRows plus the knot columns.
// Knot slices are checked against their counts and for ordering before any
// row is written.
func (b *SplineBuffer) FillMatchingRows(rows []int, fit SplineFit) error {
	const op = "fill matching rows"
	n, err := b.NRow()
	if err != nil {
		return err
	}
	pc, err := b.fetchPolyColumns()
	if err != nil {
		return err
	}
	if err := pc.checkLengths(n); err != nil {
		return err
	}
	sc, err := b.fetchSplineColumns()
	if err != nil {
		return err
	}
	if err := sc.checkLengths(n); err != nil {
		return err
	}
	if err := checkMatchingRows(op, rows, n); err != nil {
		return err
	}
	if err := fit.validate(op); err != nil {
		return err
	}
	for _, r := range rows {
		fit.apply(pc, sc, r)
	}
	return nil
}

func (b *SplineBuffer) Append(t Table) (int, error) {
	return b.appendTo(t, b.Kind(), b.records)
}

func (b *SplineBuffer) records() ([]Record, error) {
	recs, err := b.PolyBuffer.records()
	if err != nil {
		return nil, err
	}
	c, err := b.fetchSplineColumns()
	if err != nil {
		return nil, err
	}
	if err := c.checkLengths(len(recs)); err != nil {
		return nil, err
	}
	for r := range recs {
		recs[r].Spline = &SplineRecord{
			NKnotsAmp:        c.nKnotsAmp[r],
			NKnotsPhase:      c.nKnotsPhase[r],
			SplineKnotsAmp:   slices.Clone(c.splineKnotsAmp[r]),
			SplineKnotsPhase: slices.Clone(c.splineKnotsPhase[r]),
		}
		if err := recs[r].Spline.check("collect rows"); err != nil {
			return nil, stateErrf("collect rows", ErrInconsistent, "row %d (%w)", r, err)
		}
	}
	return recs, nil
}

func (s *SplineRecord) check(op string) error {
	if err := checkKnots(op, ColSplineKnotsAmp, s.NKnotsAmp, s.SplineKnotsAmp); err != nil {
		return err
	}
	return checkKnots(op, ColSplineKnotsPhase, s.NKnotsPhase, s.SplineKnotsPhase)
}
