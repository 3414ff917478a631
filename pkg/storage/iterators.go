package storage

import (
	"context"
	"errors"
)

// ErrIteratorDone is returned by Iterator.Next when iteration is exhausted.
var ErrIteratorDone = errors.New("iterator done")

// Iterator is a single-pass, forward-only cursor. It is closed by
// explicitly calling Stop or by calling Next until it returns
// ErrIteratorDone. Stop must be safe to call multiple times.
type Iterator[T any] interface {
	// Next returns the next available item. If the context is done it
	// returns the context error.
	Next(ctx context.Context) (T, error)
	// Stop releases any resources held by the iterator.
	Stop()
}

type staticIterator[T any] struct {
	items []T
}

func (s *staticIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if len(s.items) == 0 {
		return zero, ErrIteratorDone
	}
	next, rest := s.items[0], s.items[1:]
	s.items = rest
	return next, nil
}

func (s *staticIterator[T]) Stop() {}

// NewStaticIterator returns an Iterator over the provided slice.
func NewStaticIterator[T any](items []T) Iterator[T] {
	return &staticIterator[T]{items: items}
}

// FilterFunc decides whether an item is yielded by a filtered iterator.
type FilterFunc[T any] func(T) bool

type filteredIterator[T any] struct {
	iter   Iterator[T]
	filter FilterFunc[T]
}

func (f *filteredIterator[T]) Next(ctx context.Context) (T, error) {
	for {
		item, err := f.iter.Next(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		if f.filter(item) {
			return item, nil
		}
	}
}

func (f *filteredIterator[T]) Stop() {
	f.iter.Stop()
}

// NewFilteredIterator returns an iterator that yields only the items of
// iter for which filter returns true.
func NewFilteredIterator[T any](iter Iterator[T], filter FilterFunc[T]) Iterator[T] {
	return &filteredIterator[T]{iter: iter, filter: filter}
}

// Drain consumes the iterator to completion and returns all items.
// The iterator is stopped regardless of outcome.
func Drain[T any](ctx context.Context, iter Iterator[T]) ([]T, error) {
	defer iter.Stop()

	var items []T
	for {
		item, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return items, nil
			}
			return nil, err
		}
		items = append(items, item)
	}
}
