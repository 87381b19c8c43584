package sets

import (
	"cmp"
	"slices"
)

// Set is a simple generic hash set for comparable keys.
// Usage: s := sets.New[string]("a","b"); s.Add("c"); if s.Has("b") {...}
type Set[T comparable] map[T]struct{}

// New creates a set pre-populated with the provided values.
func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts value into the set.
func (s Set[T]) Add(v T) { s[v] = struct{}{} }

// Has returns true if v is present.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Delete removes v if present.
func (s Set[T]) Delete(v T) { delete(s, v) }

// Clone returns a shallow copy.
func (s Set[T]) Clone() Set[T] {
	out := make(Set[T], len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Sorted returns the members of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	out := make([]T, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Ordered is a set that remembers first-insertion order.
// The zero value is ready to use.
type Ordered[T comparable] struct {
	index map[T]struct{}
	items []T
}

// NewOrdered creates an ordered set from vals, dropping repeats.
func NewOrdered[T comparable](vals ...T) *Ordered[T] {
	o := &Ordered[T]{}
	for _, v := range vals {
		o.Add(v)
	}
	return o
}

// Add appends v unless it is already present. It reports whether v was added.
func (o *Ordered[T]) Add(v T) bool {
	if o.index == nil {
		o.index = make(map[T]struct{})
	}
	if _, ok := o.index[v]; ok {
		return false
	}
	o.index[v] = struct{}{}
	o.items = append(o.items, v)
	return true
}

// Has returns true if v is present.
func (o *Ordered[T]) Has(v T) bool {
	_, ok := o.index[v]
	return ok
}

// Len returns the number of members.
func (o *Ordered[T]) Len() int { return len(o.items) }

// Values returns a copy of the members in insertion order.
func (o *Ordered[T]) Values() []T { return slices.Clone(o.items) }
