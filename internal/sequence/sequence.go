// Package sequence implements lazy, possibly infinite element streams. A
// Sequence is a reusable iterator factory: each traversal starts fresh, so a
// sequence value can be consumed more than once. Elements are arbitrary
// runtime representations, typically tensors.
package sequence

import (
	"context"
	"errors"
)

// ErrDone is returned by Iterator.Next when the stream is exhausted.
var ErrDone = errors.New("sequence: no more elements")

// Iterator walks one traversal of a sequence.
type Iterator interface {
	// Next returns the next element, or ErrDone when the stream ends.
	Next() (any, error)
}

// Sequence is a lazily evaluated element stream.
type Sequence struct {
	iterate func() Iterator
}

// New builds a Sequence from an iterator factory. The factory is invoked once
// per traversal and must return an independent Iterator each time.
func New(iterate func() Iterator) *Sequence {
	return &Sequence{iterate: iterate}
}

// Iterate begins a fresh traversal.
func (s *Sequence) Iterate() Iterator { return s.iterate() }

type sliceIterator struct {
	items []any
	pos   int
}

func (it *sliceIterator) Next() (any, error) {
	if it.pos >= len(it.items) {
		return nil, ErrDone
	}
	v := it.items[it.pos]
	it.pos++
	return v, nil
}

// FromSlice builds a finite sequence over items.
func FromSlice(items ...any) *Sequence {
	return New(func() Iterator { return &sliceIterator{items: items} })
}

type funcIterator struct {
	next func() (any, bool)
}

func (it *funcIterator) Next() (any, error) {
	v, ok := it.next()
	if !ok {
		return nil, ErrDone
	}
	return v, nil
}

// FromFunc builds a sequence from a generator. gen is called once per
// traversal and returns a pull function yielding (element, true) until the
// stream ends with (_, false).
func FromFunc(gen func() func() (any, bool)) *Sequence {
	return New(func() Iterator { return &funcIterator{next: gen()} })
}

// Range yields the int64 values 0..n-1.
func Range(n int64) *Sequence {
	return FromFunc(func() func() (any, bool) {
		var i int64
		return func() (any, bool) {
			if i >= n {
				return nil, false
			}
			v := i
			i++
			return v, true
		}
	})
}

// Repeat cycles the sequence forever. Repeating an empty sequence yields an
// empty sequence rather than spinning.
func (s *Sequence) Repeat() *Sequence {
	return New(func() Iterator {
		return &repeatIterator{src: s}
	})
}

type repeatIterator struct {
	src     *Sequence
	current Iterator
	yielded bool
}

func (it *repeatIterator) Next() (any, error) {
	for {
		if it.current == nil {
			it.current = it.src.Iterate()
		}
		v, err := it.current.Next()
		if err == nil {
			it.yielded = true
			return v, nil
		}
		if !errors.Is(err, ErrDone) {
			return nil, err
		}
		if !it.yielded {
			return nil, ErrDone
		}
		it.current = nil
		it.yielded = false
	}
}

// Take bounds the sequence to its first n elements.
func (s *Sequence) Take(n int64) *Sequence {
	return New(func() Iterator {
		return &takeIterator{it: s.Iterate(), remaining: n}
	})
}

type takeIterator struct {
	it        Iterator
	remaining int64
}

func (it *takeIterator) Next() (any, error) {
	if it.remaining <= 0 {
		return nil, ErrDone
	}
	it.remaining--
	return it.it.Next()
}

// Map transforms each element through f.
func (s *Sequence) Map(f func(any) (any, error)) *Sequence {
	return New(func() Iterator {
		return &mapIterator{it: s.Iterate(), f: f}
	})
}

type mapIterator struct {
	it Iterator
	f  func(any) (any, error)
}

func (it *mapIterator) Next() (any, error) {
	v, err := it.it.Next()
	if err != nil {
		return nil, err
	}
	return it.f(v)
}

// Reduce folds the sequence into a single value. The sequence must be finite;
// ctx cancellation aborts traversal of runaway streams.
func (s *Sequence) Reduce(ctx context.Context, zero any, f func(acc, v any) (any, error)) (any, error) {
	acc := zero
	it := s.Iterate()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := it.Next()
		if errors.Is(err, ErrDone) {
			return acc, nil
		}
		if err != nil {
			return nil, err
		}
		acc, err = f(acc, v)
		if err != nil {
			return nil, err
		}
	}
}

// Collect materializes the sequence into a slice. The sequence must be
// finite; ctx cancellation aborts traversal.
func (s *Sequence) Collect(ctx context.Context) ([]any, error) {
	var out []any
	it := s.Iterate()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := it.Next()
		if errors.Is(err, ErrDone) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}
