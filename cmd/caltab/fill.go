package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andreyvit/calbuf"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

type fillOptions struct {
	groupBy string
	match   string

	freqGroup   string
	polyType    string
	polyMode    string
	scaleFactor string
	nPolyAmp    int
	nPolyPhase  int
	coeffAmp    []float64
	coeffPhase  []float64
	phaseUnits  string
	refFreq     float64
	refAnt      int
	knotsAmp    []float64
	knotsPhase  []float64
}

func (a *app) fillCmd() *cobra.Command {
	var o fillOptions
	cmd := &cobra.Command{
		Use:   "fill [flags] from to",
		Short: "write a polynomial fit into matching rows and append them to another table",
		Long: `Walk the source table group by group, overwrite the fit columns of the
rows matching --match (all rows when empty) and append every group to the
destination table, which is created with the source schema when missing.
Coefficients are given row-major with one row per coefficient and one column
per receptor.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fit, err := o.splineFit()
			if err != nil {
				return err
			}
			matchType, matchValue, err := parseMatch(o.match)
			if err != nil {
				return err
			}
			return a.withStore(func(s *calbuf.Store) error {
				src, err := s.Table(args[0])
				if err != nil {
					return err
				}
				if src.Schema().Kind < calbuf.KindPolynomial {
					return fmt.Errorf("table %s holds %v rows, fill needs poly or spline", src.Name(), src.Schema().Kind)
				}
				dst, err := openOrCreate(s, args[1], src.Schema())
				if err != nil {
					return err
				}

				var filled, total int
				err = eachGroup(src, o.groupBy, func(group int, b boundBuffer) error {
					n, err := b.NRow()
					if err != nil {
						return err
					}
					rows := allRows(n)
					if matchType != 0 {
						if rows, err = b.MatchRows(matchType, matchValue); err != nil {
							return err
						}
					}
					switch b := b.(type) {
					case *calbuf.SplineBuffer:
						err = b.FillMatchingRows(rows, fit)
					case *calbuf.PolyBuffer:
						err = b.FillMatchingRows(rows, fit.PolyFit)
					}
					if err != nil {
						return err
					}
					if _, err := b.Append(dst); err != nil {
						return err
					}
					log.Debugf("group %d: filled %d of %d rows", group, len(rows), n)
					filled += len(rows)
					total += n
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d rows filled, appended to %s\n", filled, total, dst.Name())
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.groupBy, "group-by", "", "index type to group rows by (default: first index type)")
	f.StringVar(&o.match, "match", "", "only fill rows whose index equals a value, e.g. ANTENNA1=3")
	f.StringVar(&o.freqGroup, "freq-group", "", "frequency group name")
	f.StringVar(&o.polyType, "poly-type", string(calbuf.PolyChebyshev), "CHEBYSHEV, POLYNOMIAL or SPLINE")
	f.StringVar(&o.polyMode, "poly-mode", string(calbuf.PolyModeAmpPhase), "A&P, AMP, PHAS or their _DIFF variants")
	f.StringVar(&o.scaleFactor, "scale-factor", "1", "complex scale factor, e.g. 1+0.5i")
	f.IntVar(&o.nPolyAmp, "n-poly-amp", 0, "amplitude polynomial degree")
	f.IntVar(&o.nPolyPhase, "n-poly-phase", 0, "phase polynomial degree")
	f.Float64SliceVar(&o.coeffAmp, "coeff-amp", nil, "amplitude coefficients, row-major")
	f.Float64SliceVar(&o.coeffPhase, "coeff-phase", nil, "phase coefficients, row-major")
	f.StringVar(&o.phaseUnits, "phase-units", "RADIANS", "phase units")
	f.Float64Var(&o.refFreq, "ref-freq", 0, "reference frequency in Hz")
	f.IntVar(&o.refAnt, "ref-ant", -1, "reference antenna")
	f.Float64SliceVar(&o.knotsAmp, "knots-amp", nil, "amplitude spline knots (spline tables)")
	f.Float64SliceVar(&o.knotsPhase, "knots-phase", nil, "phase spline knots (spline tables)")
	return cmd
}

func (o *fillOptions) splineFit() (calbuf.SplineFit, error) {
	sf, err := strconv.ParseComplex(o.scaleFactor, 128)
	if err != nil {
		return calbuf.SplineFit{}, fmt.Errorf("invalid --scale-factor: %w", err)
	}
	amp, err := coeffMatrix("coeff-amp", o.coeffAmp, o.nPolyAmp)
	if err != nil {
		return calbuf.SplineFit{}, err
	}
	phase, err := coeffMatrix("coeff-phase", o.coeffPhase, o.nPolyPhase)
	if err != nil {
		return calbuf.SplineFit{}, err
	}
	return calbuf.SplineFit{
		PolyFit: calbuf.PolyFit{
			FreqGroupName:  o.freqGroup,
			PolyType:       calbuf.PolyType(strings.ToUpper(o.polyType)),
			PolyMode:       calbuf.PolyMode(strings.ToUpper(o.polyMode)),
			ScaleFactor:    sf,
			NPolyAmp:       o.nPolyAmp,
			NPolyPhase:     o.nPolyPhase,
			PolyCoeffAmp:   amp,
			PolyCoeffPhase: phase,
			PhaseUnits:     o.phaseUnits,
			RefFreq:        o.refFreq,
			RefAnt:         o.refAnt,
		},
		NKnotsAmp:        len(o.knotsAmp),
		NKnotsPhase:      len(o.knotsPhase),
		SplineKnotsAmp:   o.knotsAmp,
		SplineKnotsPhase: o.knotsPhase,
	}, nil
}

// coeffMatrix shapes row-major values into degree+1 rows. Empty input and
// negative degrees yield nil, which FillMatchingRows reports.
func coeffMatrix(flag string, vals []float64, degree int) (*mat.Dense, error) {
	rows := degree + 1
	if rows <= 0 || len(vals) == 0 {
		return nil, nil
	}
	if len(vals)%rows != 0 {
		return nil, fmt.Errorf("--%s: %d values do not split into %d rows", flag, len(vals), rows)
	}
	return mat.NewDense(rows, len(vals)/rows, vals), nil
}

// parseMatch parses NAME=value. An empty string matches every row and
// returns a zero index type.
func parseMatch(s string) (calbuf.IndexType, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("invalid --match %q, wanted NAME=value", s)
	}
	t, err := calbuf.ParseIndexType(name)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --match value: %w", err)
	}
	return t, v, nil
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
