package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesOrder(t *testing.T) {
	in := From([]int{1, 2, 3, 4, 5, 6, 7}, 3)
	out, err := Map(context.Background(), in, func(v int) (int, error) { return v * v, nil })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49}, out.Items())
}

func TestFlatMapAndGroupByKey(t *testing.T) {
	docs := From([]string{"cat sat", "dog sat", "cat dog"}, 2)
	words, err := FlatMap(context.Background(), docs, func(d string) ([]Pair[string, int], error) {
		var out []Pair[string, int]
		for _, w := range strings.Fields(d) {
			out = append(out, KV(w, 1))
		}
		return out, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, words.Len())

	groups := GroupByKey(words).Items()
	require.Len(t, groups, 3)
	assert.Equal(t, KV("cat", []int{1, 1}), groups[0])
	assert.Equal(t, KV("sat", []int{1, 1}), groups[1])
	assert.Equal(t, KV("dog", []int{1, 1}), groups[2])
}

func TestMapStopsOnError(t *testing.T) {
	boom := errors.New("bad document")
	_, err := Map(context.Background(), From([]int{1, 2, 3}, 1), func(v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestForEachBoundsParallelism(t *testing.T) {
	var inFlight, peak, done atomic.Int32
	items := make([]int, 50)
	err := ForEach(context.Background(), From(items, 4), func(ctx context.Context, _ int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		done.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Equal(t, int32(50), done.Load())
}

func TestEmptyCollection(t *testing.T) {
	out, err := Map(context.Background(), From([]int(nil), 0), func(v int) (int, error) { return v, nil })
	require.NoError(t, err)
	assert.Zero(t, out.Len())
	assert.Empty(t, GroupByKey(From([]Pair[string, int](nil), 0)).Items())
}

func TestChunks(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, chunks(7, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, chunks(2, 8))
	assert.Nil(t, chunks(0, 4))
}
