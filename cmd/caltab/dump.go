package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/andreyvit/calbuf"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func (a *app) dumpCmd() *cobra.Command {
	var groupBy string
	cmd := &cobra.Command{
		Use:   "dump [flags] table",
		Short: "print the rows of a table group by group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *calbuf.Store) error {
				t, err := s.Table(args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				return eachGroup(t, groupBy, func(group int, b boundBuffer) error {
					return dumpGroup(w, group, b)
				})
			})
		},
	}
	cmd.Flags().StringVar(&groupBy, "group-by", "", "index type to group rows by (default: first index type)")
	return cmd
}

func dumpGroup(w io.Writer, group int, b boundBuffer) error {
	n, err := b.NRow()
	if err != nil {
		return err
	}
	sel, err := b.Index()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# group %d: %d rows\n", group, n)

	lines := make([]strings.Builder, n)
	for r := range lines {
		for i, t := range sel.Types {
			if i > 0 {
				lines[r].WriteByte(' ')
			}
			fmt.Fprintf(&lines[r], "%v=%d", t, sel.Values[i][r])
		}
	}
	if err := describeRows(lines, b); err != nil {
		return err
	}
	for r := range lines {
		fmt.Fprintln(w, lines[r].String())
	}
	return nil
}

// describeRows appends the non-index columns of every row to lines.
func describeRows(lines []strings.Builder, b boundBuffer) error {
	var base *calbuf.Buffer
	var poly *calbuf.PolyBuffer
	var spline *calbuf.SplineBuffer
	switch b := b.(type) {
	case *calbuf.SplineBuffer:
		base, poly, spline = &b.Buffer, &b.PolyBuffer, b
	case *calbuf.PolyBuffer:
		base, poly = &b.Buffer, b
	case *calbuf.Buffer:
		base = b
	default:
		return fmt.Errorf("unsupported buffer %T", b)
	}

	tm, err := base.Time()
	if err != nil {
		return err
	}
	refAnt, err := base.RefAnt()
	if err != nil {
		return err
	}
	gain, err := base.Gain()
	if err != nil {
		return err
	}
	ok, err := base.SolnOK()
	if err != nil {
		return err
	}
	for r := range lines {
		fmt.Fprintf(&lines[r], " time=%g ref_ant=%d ok=%v gain=%v", tm[r], refAnt[r], ok[r], gain[r])
	}

	if poly != nil {
		types, err := poly.PolyType()
		if err != nil {
			return err
		}
		modes, err := poly.PolyMode()
		if err != nil {
			return err
		}
		amp, err := poly.PolyCoeffAmp()
		if err != nil {
			return err
		}
		phase, err := poly.PolyCoeffPhase()
		if err != nil {
			return err
		}
		for r := range lines {
			fmt.Fprintf(&lines[r], " poly=%s/%s amp=%s phase=%s", types[r], modes[r], formatCoeffs(amp[r]), formatCoeffs(phase[r]))
		}
	}

	if spline != nil {
		knotsAmp, err := spline.SplineKnotsAmp()
		if err != nil {
			return err
		}
		knotsPhase, err := spline.SplineKnotsPhase()
		if err != nil {
			return err
		}
		for r := range lines {
			fmt.Fprintf(&lines[r], " knots_amp=%v knots_phase=%v", knotsAmp[r], knotsPhase[r])
		}
	}
	return nil
}

func formatCoeffs(m *mat.Dense) string {
	if m == nil || m.IsEmpty() {
		return "[]"
	}
	return strings.Join(strings.Fields(fmt.Sprintf("%v", mat.Formatted(m, mat.Squeeze()))), " ")
}
