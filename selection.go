package calbuf

import (
	"fmt"
	"slices"
	"strings"
)

// IndexType identifies one key of the calibration solution space.
type IndexType int

const (
	IndexAntenna1 IndexType = iota + 1
	IndexAntenna2
	IndexFieldID
	IndexSpwID
	IndexTimeBucket
	IndexScanNo
	IndexObsID
)

var indexTypeNames = map[IndexType]string{
	IndexAntenna1:   "ANTENNA1",
	IndexAntenna2:   "ANTENNA2",
	IndexFieldID:    "FIELD_ID",
	IndexSpwID:      "SPW_ID",
	IndexTimeBucket: "TIME_BUCKET",
	IndexScanNo:     "SCAN_NO",
	IndexObsID:      "OBS_ID",
}

func (t IndexType) Valid() bool {
	_, ok := indexTypeNames[t]
	return ok
}

func (t IndexType) String() string {
	if s, ok := indexTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("IndexType(%d)", int(t))
}

// ParseIndexType resolves a column name like "SPW_ID" (case-insensitive).
func ParseIndexType(name string) (IndexType, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for t, s := range indexTypeNames {
		if s == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown index type %q", name)
}

// ParseIndexTypes parses a comma-separated list of index type names.
func ParseIndexTypes(list string) ([]IndexType, error) {
	var result []IndexType
	for _, s := range strings.Split(list, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		t, err := ParseIndexType(s)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// Selection is the index key space of a set of rows: for each index type,
// the value of that key in every row. Values[i][r] is the value of Types[i]
// in row r.
type Selection struct {
	Types  []IndexType
	Values [][]int
}

// NewSelection validates and returns a selection.
func NewSelection(types []IndexType, values [][]int) (Selection, error) {
	sel := Selection{Types: types, Values: values}
	if err := sel.Validate(); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

func (sel Selection) Validate() error {
	const op = "selection"
	if len(sel.Types) != len(sel.Values) {
		return validationErrf(op, "", "%d index types but %d value sequences", len(sel.Types), len(sel.Values))
	}
	n := sel.NRow()
	for i, t := range sel.Types {
		if !t.Valid() {
			return validationErrf(op, t.String(), "unknown index type")
		}
		if slices.Index(sel.Types[:i], t) >= 0 {
			return validationErrf(op, t.String(), "duplicate index type")
		}
		if len(sel.Values[i]) != n {
			return validationErrf(op, t.String(), "%d values, wanted %d", len(sel.Values[i]), n)
		}
		for r, v := range sel.Values[i] {
			if v < 0 {
				return validationErrf(op, t.String(), "negative value %d in row %d", v, r)
			}
		}
	}
	return nil
}

// NRow returns the number of rows, i.e. the length of the first value
// sequence. A selection without index types has no rows.
func (sel Selection) NRow() int {
	if len(sel.Values) == 0 {
		return 0
	}
	return len(sel.Values[0])
}

// Column returns the values of the given index type, or nil if the selection
// does not include it.
func (sel Selection) Column(t IndexType) []int {
	i := slices.Index(sel.Types, t)
	if i < 0 {
		return nil
	}
	return sel.Values[i]
}

// Row returns the index values of row r, in Types order.
func (sel Selection) Row(r int) []int {
	result := make([]int, len(sel.Types))
	for i := range sel.Types {
		result[i] = sel.Values[i][r]
	}
	return result
}

// Clone returns a deep copy.
func (sel Selection) Clone() Selection {
	values := make([][]int, len(sel.Values))
	for i, v := range sel.Values {
		values[i] = slices.Clone(v)
	}
	return Selection{Types: slices.Clone(sel.Types), Values: values}
}

// selectionFromRows builds the selection of a row set.
func selectionFromRows(types []IndexType, rows []Record) Selection {
	values := make([][]int, len(types))
	for i := range types {
		values[i] = make([]int, len(rows))
		for r, rec := range rows {
			if i < len(rec.Index) {
				values[i][r] = rec.Index[i]
			}
		}
	}
	return Selection{Types: slices.Clone(types), Values: values}
}
