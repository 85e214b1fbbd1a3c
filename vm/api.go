package vm

import "fmt"

// The methods below are the embedding API of a State. Indices follow the Lua
// convention: positive indices count from the bottom of the current frame,
// negative ones from the top.

func (s *State) index(idx int) (int, bool) {
	n := len(s.ci.stack)
	switch {
	case idx > 0 && idx <= n:
		return idx - 1, true
	case idx < 0 && -idx <= n:
		return n + idx, true
	}
	return 0, false
}

// Get returns the value at idx or nil when idx is not valid.
func (s *State) Get(idx int) Value {
	if i, ok := s.index(idx); ok {
		return s.ci.stack[i]
	}
	return Nil
}

// Push pushes v.
func (s *State) Push(v Value) {
	s.ci.stack = append(s.ci.stack, v)
}

// Pop removes n values from the top.
func (s *State) Pop(n int) {
	s.SetTop(-n - 1)
}

// GetTop returns the number of values in the current frame.
func (s *State) GetTop() int {
	return len(s.ci.stack)
}

// SetTop sets the top to idx, filling with nil or discarding values.
func (s *State) SetTop(idx int) {
	n := idx
	if idx < 0 {
		n = len(s.ci.stack) + idx + 1
	}
	if n < 0 {
		n = 0
	}
	for len(s.ci.stack) < n {
		s.ci.stack = append(s.ci.stack, Nil)
	}
	s.ci.stack = s.ci.stack[:n]
}

// AbsIndex converts idx into an absolute index.
func (s *State) AbsIndex(idx int) int {
	if idx > 0 {
		return idx
	}
	return len(s.ci.stack) + idx + 1
}

// PushValue pushes a copy of the value at idx.
func (s *State) PushValue(idx int) {
	s.Push(s.Get(idx))
}

// Copy copies the value at from into to.
func (s *State) Copy(from, to int) error {
	i, ok := s.index(to)
	if !ok {
		return fmt.Errorf("invalid index %d", to)
	}
	s.ci.stack[i] = s.Get(from)
	return nil
}

// TypeAt returns the type of the value at idx, or TypeNone for an invalid index.
func (s *State) TypeAt(idx int) Type {
	if i, ok := s.index(idx); ok {
		return s.ci.stack[i].Type()
	}
	return TypeNone
}

// IsInteger returns true when the value at idx is an integer.
func (s *State) IsInteger(idx int) bool {
	return s.Get(idx).IsInteger()
}

// IsNumber returns true when the value at idx is a number or a numeric string.
func (s *State) IsNumber(idx int) bool {
	_, ok := s.Get(idx).ToNumber()
	return ok
}

// ToBoolean returns the truthiness of the value at idx.
func (s *State) ToBoolean(idx int) bool {
	return s.Get(idx).Truthy()
}

// ToIntegerX converts the value at idx to an integer.
func (s *State) ToIntegerX(idx int) (int64, bool) {
	return s.Get(idx).ToInteger()
}

// ToNumberX converts the value at idx to a float.
func (s *State) ToNumberX(idx int) (float64, bool) {
	return s.Get(idx).ToNumber()
}

// RawLen returns the raw length of a string or table, zero otherwise.
func (s *State) RawLen(idx int) int64 {
	v := s.Get(idx)
	switch v.Type() {
	case TypeString:
		return int64(len(v.s))
	case TypeTable:
		return v.t.Len()
	}
	return 0
}

// PushNil pushes nil.
func (s *State) PushNil() { s.Push(Nil) }

// PushInteger pushes an integer.
func (s *State) PushInteger(i int64) { s.Push(Int(i)) }

// PushNumber pushes a float.
func (s *State) PushNumber(f float64) { s.Push(Float(f)) }

// PushBoolean pushes a boolean.
func (s *State) PushBoolean(b bool) { s.Push(Bool(b)) }

// CreateTable pushes a new table.
func (s *State) CreateTable(narr, nrec int) {
	s.Push(TableValue(NewTable(narr, nrec)))
}

func (s *State) tableAt(idx int) (*Table, error) {
	v := s.Get(idx)
	if v.Type() != TypeTable {
		return nil, ErrorTableExpected
	}
	return v.t, nil
}

// RawGetI pushes t[n] where t is the table at idx and returns its type.
func (s *State) RawGetI(idx int, n int64) (Type, error) {
	t, err := s.tableAt(idx)
	if err != nil {
		return TypeNone, err
	}
	v := t.GetInt(n)
	s.Push(v)
	return v.Type(), nil
}

// RawSetI pops a value and assigns it to t[n] where t is the table at idx.
func (s *State) RawSetI(idx int, n int64) error {
	t, err := s.tableAt(idx)
	if err != nil {
		return err
	}
	if len(s.ci.stack) == 0 {
		return fmt.Errorf("stack is empty")
	}
	t.SetInt(n, s.Get(-1))
	s.Pop(1)
	return nil
}

// RawEqual compares the values at i1 and i2 without metamethods.
func (s *State) RawEqual(i1, i2 int) bool {
	if _, ok := s.index(i1); !ok {
		return false
	}
	if _, ok := s.index(i2); !ok {
		return false
	}
	return Equal(s.Get(i1), s.Get(i2))
}

// Compare compares the values at i1 and i2 with op.
func (s *State) Compare(i1, i2 int, op CompareOp) (bool, error) {
	if _, ok := s.index(i1); !ok {
		return false, nil
	}
	if _, ok := s.index(i2); !ok {
		return false, nil
	}
	return Compare(op, s.Get(i1), s.Get(i2))
}

// Arith pops the operands of op, two or one for unary operators, and pushes the result.
func (s *State) Arith(op ArithOp) error {
	n := 2
	if op == ArithUnm || op == ArithBNot {
		n = 1
	}
	if len(s.ci.stack) < n {
		return fmt.Errorf("not enough operands for arithmetic")
	}
	a, b := s.Get(-n), s.Get(-1)
	v, err := Arith(op, a, b)
	if err != nil {
		return err
	}
	s.Pop(n)
	s.Push(v)
	return nil
}
