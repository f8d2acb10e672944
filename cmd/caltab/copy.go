package main

import (
	"fmt"

	"github.com/andreyvit/calbuf"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) copyCmd() *cobra.Command {
	var groupBy string
	cmd := &cobra.Command{
		Use:   "copy [flags] from to",
		Short: "append all rows of one table to another, group by group",
		Long: `Append all rows of the source table to the destination table, one
group at a time. The destination is created with the source schema if it
does not exist.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *calbuf.Store) error {
				src, err := s.Table(args[0])
				if err != nil {
					return err
				}
				dst, err := openOrCreate(s, args[1], src.Schema())
				if err != nil {
					return err
				}
				var total int
				err = eachGroup(src, groupBy, func(group int, b boundBuffer) error {
					first, err := b.Append(dst)
					if err != nil {
						return err
					}
					n, _ := b.NRow()
					log.Debugf("group %d: %d rows appended at row %d", group, n, first)
					total += n
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d rows copied from %s to %s\n", total, src.Name(), dst.Name())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&groupBy, "group-by", "", "index type to group rows by (default: first index type)")
	return cmd
}
