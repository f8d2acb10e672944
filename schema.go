package calbuf

import (
	"fmt"
	"slices"
	"strings"
)

// Kind selects the buffer variant and therefore the set of columns.
type Kind int

const (
	KindPlain Kind = iota
	KindPolynomial
	KindSpline
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindPolynomial:
		return "poly"
	case KindSpline:
		return "spline"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "plain", "gain":
		return KindPlain, nil
	case "poly", "polynomial":
		return KindPolynomial, nil
	case "spline":
		return KindSpline, nil
	default:
		return 0, fmt.Errorf("unknown buffer kind %q", s)
	}
}

const (
	ColTime          = "TIME"
	ColInterval      = "INTERVAL"
	ColFreqGroupName = "FREQ_GROUP_NAME"
	ColRefAnt        = "REF_ANT"
	ColRefFreq       = "REF_FREQ"
	ColGain          = "GAIN"
	ColSolnOK        = "SOLN_OK"
	ColFit           = "FIT"

	ColPolyType       = "POLY_TYPE"
	ColPolyMode       = "POLY_MODE"
	ColScaleFactor    = "SCALE_FACTOR"
	ColNPolyAmp       = "N_POLY_AMP"
	ColNPolyPhase     = "N_POLY_PHASE"
	ColPolyCoeffAmp   = "POLY_COEFF_AMP"
	ColPolyCoeffPhase = "POLY_COEFF_PHASE"
	ColPhaseUnits     = "PHASE_UNITS"

	ColNKnotsAmp        = "N_KNOTS_AMP"
	ColNKnotsPhase      = "N_KNOTS_PHASE"
	ColSplineKnotsAmp   = "SPLINE_KNOTS_AMP"
	ColSplineKnotsPhase = "SPLINE_KNOTS_PHASE"
)

var (
	plainColumnNames  = []string{ColTime, ColInterval, ColFreqGroupName, ColRefAnt, ColRefFreq, ColGain, ColSolnOK, ColFit}
	polyColumnNames   = []string{ColPolyType, ColPolyMode, ColScaleFactor, ColNPolyAmp, ColNPolyPhase, ColPolyCoeffAmp, ColPolyCoeffPhase, ColPhaseUnits}
	splineColumnNames = []string{ColNKnotsAmp, ColNKnotsPhase, ColSplineKnotsAmp, ColSplineKnotsPhase}
)

// KindColumns returns the non-index columns of the given kind, inherited
// columns first.
func KindColumns(k Kind) []string {
	cols := slices.Clone(plainColumnNames)
	if k >= KindPolynomial {
		cols = append(cols, polyColumnNames...)
	}
	if k >= KindSpline {
		cols = append(cols, splineColumnNames...)
	}
	return cols
}

// PolyType identifies the basis of a polynomial fit.
type PolyType string

const (
	PolyChebyshev PolyType = "CHEBYSHEV"
	PolyPower     PolyType = "POLYNOMIAL"
	PolySpline    PolyType = "SPLINE"
)

// PolyMode says what the fit covers (amplitude, phase or both) and whether
// it is absolute or relative to another solution.
type PolyMode string

const (
	PolyModeAmpPhase     PolyMode = "A&P"
	PolyModeAmp          PolyMode = "AMP"
	PolyModePhase        PolyMode = "PHAS"
	PolyModeAmpPhaseDiff PolyMode = "A&P_DIFF"
	PolyModeAmpDiff      PolyMode = "AMP_DIFF"
	PolyModePhaseDiff    PolyMode = "PHAS_DIFF"
)

func (m PolyMode) Differential() bool {
	return strings.HasSuffix(string(m), "_DIFF")
}

// Schema describes the columns of a table: the buffer kind it stores plus
// the index types keying its rows.
type Schema struct {
	Kind  Kind        `msgpack:"k"`
	Index []IndexType `msgpack:"ix"`
}

func (scm Schema) Validate() error {
	if scm.Kind < KindPlain || scm.Kind > KindSpline {
		return fmt.Errorf("invalid kind %v", scm.Kind)
	}
	if len(scm.Index) == 0 {
		return fmt.Errorf("no index types")
	}
	sel := Selection{Types: scm.Index, Values: make([][]int, len(scm.Index))}
	return sel.Validate()
}

// Columns lists index column names followed by the kind's columns.
func (scm Schema) Columns() []string {
	cols := make([]string, 0, len(scm.Index)+len(splineColumnNames)+len(polyColumnNames)+len(plainColumnNames))
	for _, t := range scm.Index {
		cols = append(cols, t.String())
	}
	return append(cols, KindColumns(scm.Kind)...)
}

func (scm Schema) Equal(other Schema) bool {
	return scm.Kind == other.Kind && slices.Equal(scm.Index, other.Index)
}

func (scm Schema) String() string {
	return scm.Kind.String() + "(" + strings.Join(scm.Columns(), ",") + ")"
}
