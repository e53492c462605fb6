// Package pipeline is a small in-process map/reduce engine for the index
// build. A Collection is an immutable slice of records; Map, FlatMap and
// ForEach fan work out over a bounded number of goroutines and GroupByKey is
// the shuffle. Stages must be pure functions of their input record.
package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pair is a keyed record.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// KV builds a Pair.
func KV[K comparable, V any](k K, v V) Pair[K, V] {
	return Pair[K, V]{Key: k, Value: v}
}

// Collection is a dataset flowing between stages.
type Collection[T any] struct {
	items       []T
	parallelism int
}

// From wraps items. A non-positive parallelism uses GOMAXPROCS.
func From[T any](items []T, parallelism int) *Collection[T] {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	return &Collection[T]{items: items, parallelism: parallelism}
}

// Items returns the records. Callers must not modify the slice.
func (c *Collection[T]) Items() []T {
	return c.items
}

func (c *Collection[T]) Len() int {
	return len(c.items)
}

func derive[T, U any](c *Collection[T], items []U) *Collection[U] {
	return &Collection[U]{items: items, parallelism: c.parallelism}
}

// chunks splits [0,n) into at most parts contiguous ranges.
func chunks(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	parts = min(parts, n)
	size := (n + parts - 1) / parts
	out := make([][2]int, 0, parts)
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}

// Map applies fn to every record, preserving order.
func Map[T, U any](ctx context.Context, c *Collection[T], fn func(T) (U, error)) (*Collection[U], error) {
	out := make([]U, len(c.items))
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range chunks(len(c.items), c.parallelism) {
		g.Go(func() error {
			for i := r[0]; i < r[1]; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				v, err := fn(c.items[i])
				if err != nil {
					return err
				}
				out[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return derive(c, out), nil
}

// FlatMap applies fn to every record and concatenates the results in input
// order.
func FlatMap[T, U any](ctx context.Context, c *Collection[T], fn func(T) ([]U, error)) (*Collection[U], error) {
	nested, err := Map(ctx, c, fn)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, part := range nested.items {
		total += len(part)
	}
	out := make([]U, 0, total)
	for _, part := range nested.items {
		out = append(out, part...)
	}
	return derive(c, out), nil
}

// GroupByKey gathers values per key. Groups appear in order of first key
// occurrence and values keep input order.
func GroupByKey[K comparable, V any](c *Collection[Pair[K, V]]) *Collection[Pair[K, []V]] {
	index := make(map[K]int)
	var groups []Pair[K, []V]
	for _, p := range c.items {
		i, ok := index[p.Key]
		if !ok {
			i = len(groups)
			index[p.Key] = i
			groups = append(groups, Pair[K, []V]{Key: p.Key})
		}
		groups[i].Value = append(groups[i].Value, p.Value)
	}
	return derive(c, groups)
}

// ForEach runs fn on every record with at most the collection's parallelism
// in flight. The first error cancels the context passed to the remaining
// calls and is returned once all started calls finish.
func ForEach[T any](ctx context.Context, c *Collection[T], fn func(ctx context.Context, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, item := range c.items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
