package calbuf

import (
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Record is one calibration solution row as read from an iterator or stored
// in a table. Index holds the row's index values, aligned with the index
// types of the table schema.
type Record struct {
	Index         []int
	Time          float64
	Interval      float64
	FreqGroupName string
	RefAnt        int
	RefFreq       float64
	Gain          []complex128
	SolnOK        bool
	Fit           float64

	Poly   *PolyRecord
	Spline *SplineRecord
}

// PolyRecord holds the polynomial fit columns of a row. Coefficient matrices
// have one row per coefficient (degree+1) and one column per receptor.
type PolyRecord struct {
	Type           PolyType
	Mode           PolyMode
	ScaleFactor    complex128
	NPolyAmp       int
	NPolyPhase     int
	PolyCoeffAmp   *mat.Dense
	PolyCoeffPhase *mat.Dense
	PhaseUnits     string
}

// SplineRecord holds the spline knot columns of a row.
type SplineRecord struct {
	NKnotsAmp        int
	NKnotsPhase      int
	SplineKnotsAmp   []float64
	SplineKnotsPhase []float64
}

// Kind reports which blocks the record carries.
func (rec *Record) Kind() Kind {
	switch {
	case rec.Spline != nil:
		return KindSpline
	case rec.Poly != nil:
		return KindPolynomial
	default:
		return KindPlain
	}
}

// Clone returns a deep copy of the record.
func (rec *Record) Clone() Record {
	c := *rec
	c.Index = slices.Clone(rec.Index)
	c.Gain = slices.Clone(rec.Gain)
	if rec.Poly != nil {
		p := *rec.Poly
		p.PolyCoeffAmp = cloneDense(p.PolyCoeffAmp)
		p.PolyCoeffPhase = cloneDense(p.PolyCoeffPhase)
		c.Poly = &p
	}
	if rec.Spline != nil {
		s := *rec.Spline
		s.SplineKnotsAmp = slices.Clone(s.SplineKnotsAmp)
		s.SplineKnotsPhase = slices.Clone(s.SplineKnotsPhase)
		c.Spline = &s
	}
	return c
}

func cloneRecords(recs []Record) []Record {
	result := make([]Record, len(recs))
	for i := range recs {
		result[i] = recs[i].Clone()
	}
	return result
}

func cloneDense(m *mat.Dense) *mat.Dense {
	if m == nil || m.IsEmpty() {
		return nil
	}
	return mat.DenseCopyOf(m)
}

// zeroCoeffs is the default coefficient matrix: degree 0, one receptor.
func zeroCoeffs() *mat.Dense {
	return mat.NewDense(1, 1, nil)
}
