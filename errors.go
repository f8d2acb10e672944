package calbuf

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnbound is returned (wrapped in StateError) by operations that need an iterator.
	ErrUnbound = errors.New("buffer is not bound to an iterator")

	// ErrEmpty is returned (wrapped in StateError) when appending a buffer with no rows.
	ErrEmpty = errors.New("buffer has no rows")

	// ErrInconsistent means the iterator returned columns of different lengths.
	ErrInconsistent = errors.New("row count mismatch")

	// ErrSchemaMismatch is returned (wrapped in PersistenceError) when the
	// table's schema does not fit the buffer kind.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrMissingColumns means an iterator row lacks the columns of the buffer kind.
	ErrMissingColumns = errors.New("row lacks columns for buffer kind")

	ErrEndOfIteration = errors.New("iterator is at end")
	ErrTableExists    = errors.New("table already exists")
	ErrTableNotFound  = errors.New("table not found")
)

// StateError reports an operation that cannot run in the buffer's current
// state: detached when it must be bound, empty, or with columns that could not
// be fetched.
type StateError struct {
	Op  string
	Err error
}

func stateErrf(op string, err error, format string, args ...any) error {
	if format == "" {
		return &StateError{op, err}
	}
	return &StateError{op, fmt.Errorf(format+": %w", append(args, err)...)}
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func (e *StateError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// ValidationError reports FillMatchingRows (or selection) input violating a
// shape or ordering invariant.
type ValidationError struct {
	Op    string
	Field string
	Msg   string
}

func validationErrf(op, field string, format string, args ...any) error {
	return &ValidationError{op, field, fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Op + ": " + e.Msg
	}
	return e.Op + ": " + e.Field + ": " + e.Msg
}

// IndexError reports a row index outside [0, NRow).
type IndexError struct {
	Op   string
	Row  int
	NRow int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: row %d out of range [0, %d)", e.Op, e.Row, e.NRow)
}

// PersistenceError reports a failure writing to or reading from a table.
type PersistenceError struct {
	Table string
	Op    string
	Err   error
}

func persistenceErrf(table, op string, err error, format string, args ...any) error {
	if format == "" {
		return &PersistenceError{table, op, err}
	}
	return &PersistenceError{table, op, fmt.Errorf(format+": %w", append(args, err)...)}
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Op)
	if e.Table != "" {
		buf.WriteByte(' ')
		buf.WriteString(e.Table)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// DataError reports a corrupted or undecodable stored value.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}
