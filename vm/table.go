package vm

import (
	"errors"
	"math"
)

var (
	errNilIndex = errors.New("table index is nil")
	errNaNIndex = errors.New("table index is NaN")
)

// Table is a Lua table.
type Table struct {
	hash map[Value]Value
}

// NewTable returns an empty table with room for narr array and nrec hash entries.
func NewTable(narr, nrec int) *Table {
	if narr < 0 {
		narr = 0
	}
	if nrec < 0 {
		nrec = 0
	}
	return &Table{hash: make(map[Value]Value, narr+nrec)}
}

// Get performs a raw read of t[k].
func (t *Table) Get(k Value) Value {
	return t.hash[normalizeKey(k)]
}

// GetInt performs a raw read of t[i].
func (t *Table) GetInt(i int64) Value {
	return t.hash[Int(i)]
}

// Set performs a raw write of t[k] = v. Assigning nil removes the key.
func (t *Table) Set(k, v Value) error {
	switch {
	case k.IsNil():
		return errNilIndex
	case k.IsFloat() && math.IsNaN(k.Float()):
		return errNaNIndex
	}
	k = normalizeKey(k)
	if v.IsNil() {
		delete(t.hash, k)
	} else {
		t.hash[k] = v
	}
	return nil
}

// SetInt performs a raw write of t[i] = v.
func (t *Table) SetInt(i int64, v Value) {
	_ = t.Set(Int(i), v) // integer keys are always valid.
}

// Len returns a border of the table: an index n such that t[n] is not nil and
// t[n+1] is nil, or zero when t[1] is nil.
func (t *Table) Len() int64 {
	if t.GetInt(1).IsNil() {
		return 0
	}
	// Unbounded search for an upper bound, then binary search as lua does.
	i, j := int64(1), int64(2)
	for !t.GetInt(j).IsNil() {
		i = j
		if j > math.MaxInt64/2 {
			for n := int64(1); ; n++ {
				if t.GetInt(n).IsNil() {
					return n - 1
				}
			}
		}
		j *= 2
	}
	for j-i > 1 {
		m := (i + j) / 2
		if t.GetInt(m).IsNil() {
			j = m
		} else {
			i = m
		}
	}
	return i
}
