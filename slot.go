package calbuf

// Slot is a single cached column. Its value is only meaningful while Valid
// reports true.
type Slot[T any] struct {
	val   T
	valid bool
}

func (s *Slot[T]) Valid() bool {
	return s.valid
}

// Get returns the cached value and whether it is valid. An invalid slot
// returns the zero value.
func (s *Slot[T]) Get() (T, bool) {
	if !s.valid {
		var zero T
		return zero, false
	}
	return s.val, true
}

func (s *Slot[T]) Set(v T) {
	s.val = v
	s.valid = true
}

// Reset marks the slot invalid and drops the cached value.
func (s *Slot[T]) Reset() {
	var zero T
	s.val = zero
	s.valid = false
}

// fill returns the cached value, calling load to obtain it when the slot is
// invalid. A failed load leaves the slot invalid.
func (s *Slot[T]) fill(load func() (T, error)) (T, error) {
	if s.valid {
		return s.val, nil
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	s.Set(v)
	return v, nil
}
