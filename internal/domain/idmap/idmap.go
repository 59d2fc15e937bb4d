// Package idmap compresses opaque identifiers into small integers and back.
//
// Models cite documents more accurately and cheaply when they reason over
// 1, 2, 3 instead of long UUIDs. A Mapper is the reversible bridge between the
// model-facing integer space and the system-facing identifier space.
package idmap

// Mapper is an immutable bidirectional mapping between identifiers and the
// integers 1..MaxID. A nil *Mapper behaves like an empty one.
type Mapper[T comparable] struct {
	toInt  map[T]int
	fromID []T // fromID[n-1] is the identifier assigned to n
}

// New assigns integers to ids in input order starting at 1.
// Repeated identifiers keep their first position and do not consume an integer,
// so the assigned range is always contiguous.
func New[T comparable](ids []T) *Mapper[T] {
	m := &Mapper[T]{
		toInt:  make(map[T]int, len(ids)),
		fromID: make([]T, 0, len(ids)),
	}
	for _, id := range ids {
		if _, dup := m.toInt[id]; dup {
			continue
		}
		m.fromID = append(m.fromID, id)
		m.toInt[id] = len(m.fromID)
	}
	return m
}

// ToInt returns the integer assigned to id.
func (m *Mapper[T]) ToInt(id T) (int, bool) {
	if m == nil {
		return 0, false
	}
	n, ok := m.toInt[id]
	return n, ok
}

// FromInt returns the identifier assigned to n. Out-of-range values are absent.
func (m *Mapper[T]) FromInt(n int) (T, bool) {
	var zero T
	if m == nil || n < 1 || n > len(m.fromID) {
		return zero, false
	}
	return m.fromID[n-1], true
}

// MaxID returns the number of mapped identifiers.
func (m *Mapper[T]) MaxID() int {
	if m == nil {
		return 0
	}
	return len(m.fromID)
}

// IDs returns the identifiers in assigned order.
func (m *Mapper[T]) IDs() []T {
	if m == nil {
		return nil
	}
	out := make([]T, len(m.fromID))
	copy(out, m.fromID)
	return out
}
