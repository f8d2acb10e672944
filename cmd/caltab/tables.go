package main

import (
	"fmt"

	"github.com/andreyvit/calbuf"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) createCmd() *cobra.Command {
	var kind, index string
	cmd := &cobra.Command{
		Use:   "create [flags] table",
		Short: "create an empty table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := calbuf.ParseKind(kind)
			if err != nil {
				return err
			}
			types, err := calbuf.ParseIndexTypes(index)
			if err != nil {
				return err
			}
			return a.withStore(func(s *calbuf.Store) error {
				t, err := s.CreateTable(args[0], calbuf.Schema{Kind: k, Index: types})
				if err != nil {
					return err
				}
				log.Infof("created %s %v", t.Name(), t.Schema())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "plain", "buffer kind: plain, poly or spline")
	cmd.Flags().StringVar(&index, "index", "ANTENNA1,SPW_ID,TIME_BUCKET", "comma-separated index types")
	return cmd
}

func (a *app) dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop table",
		Short: "delete a table and its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *calbuf.Store) error {
				return s.DropTable(args[0])
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list tables with their schemas and row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *calbuf.Store) error {
				names, err := s.Tables()
				if err != nil {
					return err
				}
				for _, name := range names {
					t, err := s.Table(name)
					if err != nil {
						return err
					}
					n, err := t.NRow()
					if err != nil {
						return err
					}
					scm := t.Schema()
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\t%v\t%d\n", name, scm.Kind, scm.Index, n)
				}
				return nil
			})
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats table",
		Short: "show row count and storage usage of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *calbuf.Store) error {
				t, err := s.Table(args[0])
				if err != nil {
					return err
				}
				ts, err := t.Stats()
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "rows:       %d\n", ts.Rows)
				fmt.Fprintf(w, "data size:  %d\n", ts.DataSize)
				fmt.Fprintf(w, "data alloc: %d\n", ts.DataAlloc)
				fmt.Fprintf(w, "file size:  %d\n", ts.FileSize)
				return nil
			})
		},
	}
}
