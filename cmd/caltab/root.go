package main

import (
	"errors"
	"log/slog"

	"github.com/andreyvit/calbuf"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	v   *viper.Viper
	cfg *config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:   "caltab",
		Short: "Inspect and edit calibration solution tables.",
		Long: `Create, list, dump, copy and refit tables of calibration solutions
kept in a single Bolt database file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.v, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			if cfg.Verbose {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default caltab.yaml in . or $HOME/.config/caltab)")
	pf.String("db", defaultDB, "database file")
	pf.BoolP("verbose", "v", false, "increase logging verbosity")
	pf.Bool("compress", false, "zstd-compress appended rows")

	root.AddCommand(
		a.createCmd(),
		a.dropCmd(),
		a.listCmd(),
		a.dumpCmd(),
		a.copyCmd(),
		a.fillCmd(),
		a.statsCmd(),
	)
	return root
}

func (a *app) openStore() (*calbuf.Store, error) {
	level := slog.LevelInfo
	if a.cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(log.StandardLogger().Out, &slog.HandlerOptions{Level: level}))
	log.Debugf("opening %s", a.cfg.DB)
	return calbuf.Open(a.cfg.DB, calbuf.Options{
		Logger:   logger,
		Verbose:  a.cfg.Verbose,
		MmapSize: a.cfg.MmapSize,
		Compress: a.cfg.Compress,
	})
}

func (a *app) withStore(f func(s *calbuf.Store) error) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	err = f(s)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// openOrCreate opens the named table, creating it with scm if it does not
// exist yet.
func openOrCreate(s *calbuf.Store, name string, scm calbuf.Schema) (*calbuf.StoredTable, error) {
	t, err := s.Table(name)
	if errors.Is(err, calbuf.ErrTableNotFound) {
		log.Infof("creating table %s %v", name, scm)
		return s.CreateTable(name, scm)
	}
	return t, err
}

// boundBuffer is the part of the buffer API shared by every kind.
type boundBuffer interface {
	Kind() calbuf.Kind
	NRow() (int, error)
	Index() (calbuf.Selection, error)
	MatchRows(t calbuf.IndexType, v int) ([]int, error)
	Append(t calbuf.Table) (int, error)
}

func bindFor(kind calbuf.Kind, it calbuf.Iterator) boundBuffer {
	switch kind {
	case calbuf.KindPolynomial:
		return calbuf.BindPolyBuffer(it)
	case calbuf.KindSpline:
		return calbuf.BindSplineBuffer(it)
	default:
		return calbuf.BindBuffer(it)
	}
}

// eachGroup walks t in groups of the groupBy index (the first index type of
// the table when empty) and calls f with a buffer bound to the current group.
func eachGroup(t calbuf.Table, groupBy string, f func(group int, b boundBuffer) error) error {
	gb := t.Schema().Index[0]
	if groupBy != "" {
		var err error
		gb, err = calbuf.ParseIndexType(groupBy)
		if err != nil {
			return err
		}
	}
	it, err := calbuf.NewTableIterator(t, gb)
	if err != nil {
		return err
	}
	b := bindFor(t.Schema().Kind, it)
	for !it.AtEnd() {
		g, _ := it.Group()
		log.Debugf("%s: %v=%d", t.Name(), gb, g)
		if err := f(g, b); err != nil {
			return err
		}
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}
