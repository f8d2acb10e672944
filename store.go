package calbuf

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const catalogBucket = "_catalog"
const rowsBucket = "rows"

// Store keeps named append-only tables.
type Store struct {
	st       storage
	bdb      *bbolt.DB
	logger   *slog.Logger
	verbose  bool
	compress bool
}

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int

	// Compress stores row payloads zstd-compressed. Reading handles both
	// forms regardless of this setting.
	Compress bool
}

// Open opens (creating if needed) a Bolt-backed store at path.
func Open(path string, opt Options) (*Store, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("calbuf: %w", err)
	}
	s := newStore(newBoltStorage(bdb), opt)
	s.bdb = bdb
	if err := s.init(); err != nil {
		bdb.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory returns a store that lives only in memory.
func OpenMemory(opt Options) *Store {
	s := newStore(newMemStorage(), opt)
	ensure(s.init())
	return s
}

func newStore(st storage, opt Options) *Store {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Store{
		st:       st,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
		compress: opt.Compress,
	}
}

func (s *Store) init() error {
	return update(s.st, func(tx storageTx) error {
		_, err := tx.CreateBucket(catalogBucket, "")
		return err
	})
}

// Bolt returns the underlying Bolt database, or nil for in-memory stores.
func (s *Store) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *Store) Close() error {
	return s.st.Close()
}

func validateTableName(name string) error {
	if name == "" || strings.HasPrefix(name, "_") || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// CreateTable creates an empty table with the given schema.
func (s *Store) CreateTable(name string, scm Schema) (*StoredTable, error) {
	const op = "create table"
	if err := validateTableName(name); err != nil {
		return nil, persistenceErrf(name, op, err, "")
	}
	if err := scm.Validate(); err != nil {
		return nil, persistenceErrf(name, op, err, "")
	}
	err := update(s.st, func(tx storageTx) error {
		cat := tx.Bucket(catalogBucket, "")
		if cat.Get([]byte(name)) != nil {
			return ErrTableExists
		}
		if err := cat.Put([]byte(name), msgpackAppend(nil, &scm)); err != nil {
			return err
		}
		_, err := tx.CreateBucket(name, rowsBucket)
		return err
	})
	if err != nil {
		return nil, persistenceErrf(name, op, err, "")
	}
	if s.verbose {
		s.logger.Debug("calbuf: table created", "table", name, "schema", scm.String())
	}
	return &StoredTable{store: s, name: name, schema: scm}, nil
}

// Table opens an existing table.
func (s *Store) Table(name string) (*StoredTable, error) {
	var scm Schema
	err := view(s.st, func(tx storageTx) error {
		raw := tx.Bucket(catalogBucket, "").Get([]byte(name))
		if raw == nil {
			return ErrTableNotFound
		}
		return msgpackDecode(raw, &scm)
	})
	if err != nil {
		return nil, persistenceErrf(name, "open table", err, "")
	}
	return &StoredTable{store: s, name: name, schema: scm}, nil
}

// Tables returns the names of all tables, sorted.
func (s *Store) Tables() ([]string, error) {
	var names []string
	err := view(s.st, func(tx storageTx) error {
		c := tx.Bucket(catalogBucket, "").Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, persistenceErrf("", "list tables", err, "")
	}
	slices.Sort(names)
	return names, nil
}

// DropTable removes a table and all its rows.
func (s *Store) DropTable(name string) error {
	err := update(s.st, func(tx storageTx) error {
		cat := tx.Bucket(catalogBucket, "")
		if cat.Get([]byte(name)) == nil {
			return ErrTableNotFound
		}
		if err := tx.DeleteBucket(name, rowsBucket); err != nil {
			return err
		}
		return cat.Delete([]byte(name))
	})
	if err != nil {
		return persistenceErrf(name, "drop table", err, "")
	}
	if s.verbose {
		s.logger.Debug("calbuf: table dropped", "table", name)
	}
	return nil
}
