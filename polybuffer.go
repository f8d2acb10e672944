package calbuf

import (
	"gonum.org/v1/gonum/mat"
)

// PolyBuffer is a Buffer whose rows also carry polynomial fits of amplitude
// and phase.
type PolyBuffer struct {
	Buffer

	polyType       Slot[[]PolyType]
	polyMode       Slot[[]PolyMode]
	scaleFactor    Slot[[]complex128]
	nPolyAmp       Slot[[]int]
	nPolyPhase     Slot[[]int]
	polyCoeffAmp   Slot[[]*mat.Dense]
	polyCoeffPhase Slot[[]*mat.Dense]
	phaseUnits     Slot[[]string]
}

// PolyFit is the set of values FillMatchingRows writes into each matching
// row. Coefficient matrices must have degree+1 rows (NPolyAmp+1 and
// NPolyPhase+1) and one column per receptor.
type PolyFit struct {
	FreqGroupName  string
	PolyType       PolyType
	PolyMode       PolyMode
	ScaleFactor    complex128
	NPolyAmp       int
	NPolyPhase     int
	PolyCoeffAmp   *mat.Dense
	PolyCoeffPhase *mat.Dense
	PhaseUnits     string
	RefFreq        float64
	RefAnt         int
}

func NewPolyBuffer() *PolyBuffer {
	return &PolyBuffer{}
}

func NewPolyBufferFor(sel Selection) (*PolyBuffer, error) {
	b := &PolyBuffer{}
	if err := b.setSelection(sel); err != nil {
		return nil, err
	}
	return b, nil
}

func BindPolyBuffer(it Iterator) *PolyBuffer {
	b := &PolyBuffer{}
	b.bind(it, b)
	return b
}

func (b *PolyBuffer) Kind() Kind {
	return KindPolynomial
}

func (b *PolyBuffer) Invalidate() error {
	if err := b.Buffer.Invalidate(); err != nil {
		return err
	}
	b.polyType.Reset()
	b.polyMode.Reset()
	b.scaleFactor.Reset()
	b.nPolyAmp.Reset()
	b.nPolyPhase.Reset()
	b.polyCoeffAmp.Reset()
	b.polyCoeffPhase.Reset()
	b.phaseUnits.Reset()
	return nil
}

func (b *PolyBuffer) Detach() error {
	if b.it == nil {
		return stateErrf("detach", ErrUnbound, "")
	}
	if _, err := b.records(); err != nil {
		return err
	}
	b.unbind()
	return nil
}

func polyOf(rec *Record) (*PolyRecord, error) {
	if rec.Poly == nil {
		return nil, ErrMissingColumns
	}
	return rec.Poly, nil
}

func (b *PolyBuffer) PolyType() ([]PolyType, error) {
	return column(&b.Buffer, &b.polyType, ColPolyType, zero[PolyType], func(rec *Record) (PolyType, error) {
		p, err := polyOf(rec)
		if err != nil {
			return "", err
		}
		return p.Type, nil
	})
}

func (b *PolyBuffer) PolyMode() ([]PolyMode, error) {
	return column(&b.Buffer, &b.polyMode, ColPolyMode, zero[PolyMode], func(rec *Record) (PolyMode, error) {
		p, err := polyOf(rec)
		if err != nil {
			return "", err
		}
		return p.Mode, nil
	})
}

// ScaleFactor defaults to 1.
func (b *PolyBuffer) ScaleFactor() ([]complex128, error) {
	return column(&b.Buffer, &b.scaleFactor, ColScaleFactor, func() complex128 { return 1 }, func(rec *Record) (complex128, error) {
		p, err := polyOf(rec)
		if err != nil {
			return 0, err
		}
		return p.ScaleFactor, nil
	})
}

func (b *PolyBuffer) NPolyAmp() ([]int, error) {
	return column(&b.Buffer, &b.nPolyAmp, ColNPolyAmp, zero[int], func(rec *Record) (int, error) {
		p, err := polyOf(rec)
		if err != nil {
			return 0, err
		}
		return p.NPolyAmp, nil
	})
}

func (b *PolyBuffer) NPolyPhase() ([]int, error) {
	return column(&b.Buffer, &b.nPolyPhase, ColNPolyPhase, zero[int], func(rec *Record) (int, error) {
		p, err := polyOf(rec)
		if err != nil {
			return 0, err
		}
		return p.NPolyPhase, nil
	})
}

// PolyCoeffAmp defaults to a 1×1 zero matrix per row, matching degree 0.
func (b *PolyBuffer) PolyCoeffAmp() ([]*mat.Dense, error) {
	return column(&b.Buffer, &b.polyCoeffAmp, ColPolyCoeffAmp, zeroCoeffs, func(rec *Record) (*mat.Dense, error) {
		p, err := polyOf(rec)
		if err != nil {
			return nil, err
		}
		return p.PolyCoeffAmp, nil
	})
}

func (b *PolyBuffer) PolyCoeffPhase() ([]*mat.Dense, error) {
	return column(&b.Buffer, &b.polyCoeffPhase, ColPolyCoeffPhase, zeroCoeffs, func(rec *Record) (*mat.Dense, error) {
		p, err := polyOf(rec)
		if err != nil {
			return nil, err
		}
		return p.PolyCoeffPhase, nil
	})
}

func (b *PolyBuffer) PhaseUnits() ([]string, error) {
	return column(&b.Buffer, &b.phaseUnits, ColPhaseUnits, zero[string], func(rec *Record) (string, error) {
		p, err := polyOf(rec)
		if err != nil {
			return "", err
		}
		return p.PhaseUnits, nil
	})
}

// polyColumns are the cached slices touched by a polynomial fill.
type polyColumns struct {
	freqGroupName  []string
	refAnt         []int
	refFreq        []float64
	polyType       []PolyType
	polyMode       []PolyMode
	scaleFactor    []complex128
	nPolyAmp       []int
	nPolyPhase     []int
	polyCoeffAmp   []*mat.Dense
	polyCoeffPhase []*mat.Dense
	phaseUnits     []string
}

func (b *PolyBuffer) fetchPolyColumns() (*polyColumns, error) {
	var c polyColumns
	var err error
	if c.freqGroupName, err = b.FreqGroupName(); err != nil {
		return nil, err
	}
	if c.refAnt, err = b.RefAnt(); err != nil {
		return nil, err
	}
	if c.refFreq, err = b.RefFreq(); err != nil {
		return nil, err
	}
	if c.polyType, err = b.PolyType(); err != nil {
		return nil, err
	}
	if c.polyMode, err = b.PolyMode(); err != nil {
		return nil, err
	}
	if c.scaleFactor, err = b.ScaleFactor(); err != nil {
		return nil, err
	}
	if c.nPolyAmp, err = b.NPolyAmp(); err != nil {
		return nil, err
	}
	if c.nPolyPhase, err = b.NPolyPhase(); err != nil {
		return nil, err
	}
	if c.polyCoeffAmp, err = b.PolyCoeffAmp(); err != nil {
		return nil, err
	}
	if c.polyCoeffPhase, err = b.PolyCoeffPhase(); err != nil {
		return nil, err
	}
	if c.phaseUnits, err = b.PhaseUnits(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *polyColumns) checkLengths(n int) error {
	return checkLengths(n, []columnLen{
		{ColFreqGroupName, len(c.freqGroupName)}, {ColRefAnt, len(c.refAnt)}, {ColRefFreq, len(c.refFreq)},
		{ColPolyType, len(c.polyType)}, {ColPolyMode, len(c.polyMode)}, {ColScaleFactor, len(c.scaleFactor)},
		{ColNPolyAmp, len(c.nPolyAmp)}, {ColNPolyPhase, len(c.nPolyPhase)},
		{ColPolyCoeffAmp, len(c.polyCoeffAmp)}, {ColPolyCoeffPhase, len(c.polyCoeffPhase)},
		{ColPhaseUnits, len(c.phaseUnits)},
	})
}

func (fit *PolyFit) validate(op string) error {
	if err := checkCoeffs(op, ColPolyCoeffAmp, fit.NPolyAmp, fit.PolyCoeffAmp); err != nil {
		return err
	}
	if err := checkCoeffs(op, ColPolyCoeffPhase, fit.NPolyPhase, fit.PolyCoeffPhase); err != nil {
		return err
	}
	_, ampCols := fit.PolyCoeffAmp.Dims()
	_, phaseCols := fit.PolyCoeffPhase.Dims()
	if ampCols != phaseCols {
		return validationErrf(op, ColPolyCoeffPhase, "%d receptors, amplitude coefficients have %d", phaseCols, ampCols)
	}
	return nil
}

func checkCoeffs(op, field string, degree int, coeffs *mat.Dense) error {
	if degree < 0 {
		return validationErrf(op, field, "negative degree %d", degree)
	}
	if coeffs == nil || coeffs.IsEmpty() {
		return validationErrf(op, field, "no coefficients")
	}
	if r, _ := coeffs.Dims(); r != degree+1 {
		return validationErrf(op, field, "%d coefficients for degree %d, wanted %d", r, degree, degree+1)
	}
	return nil
}

// apply writes fit into row r. Each row gets its own copy of the matrices.
func (fit *PolyFit) apply(c *polyColumns, r int) {
	c.freqGroupName[r] = fit.FreqGroupName
	c.refAnt[r] = fit.RefAnt
	c.refFreq[r] = fit.RefFreq
	c.polyType[r] = fit.PolyType
	c.polyMode[r] = fit.PolyMode
	c.scaleFactor[r] = fit.ScaleFactor
	c.nPolyAmp[r] = fit.NPolyAmp
	c.nPolyPhase[r] = fit.NPolyPhase
	c.polyCoeffAmp[r] = mat.DenseCopyOf(fit.PolyCoeffAmp)
	c.polyCoeffPhase[r] = mat.DenseCopyOf(fit.PolyCoeffPhase)
	c.phaseUnits[r] = fit.PhaseUnits
}

// FillMatchingRows overwrites the polynomial columns (and frequency group,
// reference antenna and reference frequency) of the given rows with fit.
// Rows must be strictly ascending and within [0, NRow()). Nothing is written
// unless every check passes.
func (b *PolyBuffer) FillMatchingRows(rows []int, fit PolyFit) error {
	const op = "fill matching rows"
	n, err := b.NRow()
	if err != nil {
		return err
	}
	cols, err := b.fetchPolyColumns()
	if err != nil {
		return err
	}
	if err := cols.checkLengths(n); err != nil {
		return err
	}
	if err := checkMatchingRows(op, rows, n); err != nil {
		return err
	}
	if err := fit.validate(op); err != nil {
		return err
	}
	for _, r := range rows {
		fit.apply(cols, r)
	}
	return nil
}

func (b *PolyBuffer) Append(t Table) (int, error) {
	return b.appendTo(t, b.Kind(), b.records)
}

func (b *PolyBuffer) records() ([]Record, error) {
	recs, err := b.Buffer.records()
	if err != nil {
		return nil, err
	}
	c, err := b.fetchPolyColumns()
	if err != nil {
		return nil, err
	}
	if err := c.checkLengths(len(recs)); err != nil {
		return nil, err
	}
	for r := range recs {
		recs[r].Poly = &PolyRecord{
			Type:           c.polyType[r],
			Mode:           c.polyMode[r],
			ScaleFactor:    c.scaleFactor[r],
			NPolyAmp:       c.nPolyAmp[r],
			NPolyPhase:     c.nPolyPhase[r],
			PolyCoeffAmp:   cloneDense(c.polyCoeffAmp[r]),
			PolyCoeffPhase: cloneDense(c.polyCoeffPhase[r]),
			PhaseUnits:     c.phaseUnits[r],
		}
		if err := recs[r].Poly.check("collect rows"); err != nil {
			return nil, stateErrf("collect rows", ErrInconsistent, "row %d (%w)", r, err)
		}
	}
	return recs, nil
}

// check verifies that each coefficient matrix has degree+1 rows.
func (p *PolyRecord) check(op string) error {
	if err := checkCoeffs(op, ColPolyCoeffAmp, p.NPolyAmp, p.PolyCoeffAmp); err != nil {
		return err
	}
	return checkCoeffs(op, ColPolyCoeffPhase, p.NPolyPhase, p.PolyCoeffPhase)
}
