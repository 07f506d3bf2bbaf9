package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeCollect(t *testing.T) {
	got, err := Range(4).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0), int64(1), int64(2), int64(3)}, got)
}

func TestFromFuncGenerator(t *testing.T) {
	s := FromFunc(func() func() (any, bool) {
		i := 0
		return func() (any, bool) {
			if i >= 3 {
				return nil, false
			}
			i++
			return i * 10, true
		}
	})

	// Two traversals must be independent.
	for range 2 {
		got, err := s.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []any{10, 20, 30}, got)
	}
}

func TestTakeFromInfiniteRepeat(t *testing.T) {
	s := FromSlice(10, 20, 30).Repeat().Take(5)
	got, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{10, 20, 30, 10, 20}, got)
}

func TestRepeatEmpty(t *testing.T) {
	it := FromSlice().Repeat().Iterate()
	_, err := it.Next()
	assert.True(t, errors.Is(err, ErrDone), "repeating an empty sequence terminates")
}

func TestMap(t *testing.T) {
	s := Range(3).Map(func(v any) (any, error) { return v.(int64) * 2, nil })
	got, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0), int64(2), int64(4)}, got)
}

func TestReduceSum(t *testing.T) {
	sum, err := FromSlice(10, 20, 30).Repeat().Take(5).Reduce(context.Background(), 0,
		func(acc, v any) (any, error) { return acc.(int) + v.(int), nil })
	require.NoError(t, err)
	assert.Equal(t, 90, sum)
}

func TestReduceCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromSlice(1).Repeat().Reduce(ctx, 0,
		func(acc, v any) (any, error) { return acc, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
