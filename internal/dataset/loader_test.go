package dataset

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeAccessor returns tensors whose single value is the index.
type fakeAccessor struct {
	n      int
	failAt int
	calls  atomic.Int64
}

func (f *fakeAccessor) Len() int { return f.n }

func (f *fakeAccessor) Get(i int) (Sample, error) {
	f.calls.Add(1)
	if i == f.failAt {
		return Sample{}, &DataAccessError{Path: fmt.Sprint(i), Err: errors.New("corrupt")}
	}
	return Sample{Tensor: Tensor{Size: 1, Data: []float32{float32(i)}}, Label: i % NumCategories}, nil
}

func collect(t *testing.T, l *Loader) [][]int {
	t.Helper()
	var out [][]int
	err := l.Each(func(b Batch) error {
		ids := make([]int, b.Len())
		for i, input := range b.Inputs {
			ids[i] = int(input.Data[0])
			require.Equal(t, ids[i]%NumCategories, b.Labels[i])
		}
		require.Equal(t, ids[0], b.Offset)
		out = append(out, ids)
		return nil
	})
	require.Nil(t, err)
	return out
}

func TestLoaderBatchesInOrder(t *testing.T) {
	l := NewLoader(&fakeAccessor{n: 10, failAt: -1}, LoaderOptions{BatchSize: 4, Workers: 3, Prefetch: 2})

	require.Equal(t, 3, l.NumBatches())
	require.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, collect(t, l))
}

func TestLoaderIsRestartable(t *testing.T) {
	l := NewLoader(&fakeAccessor{n: 9, failAt: -1}, LoaderOptions{BatchSize: 2, Workers: 4})

	first := collect(t, l)
	second := collect(t, l)
	require.Equal(t, first, second)
	require.Len(t, first, 5)
}

func TestLoaderEmptySplit(t *testing.T) {
	l := NewLoader(&fakeAccessor{n: 0, failAt: -1}, LoaderOptions{BatchSize: 2})

	require.Equal(t, 0, l.NumBatches())
	require.Empty(t, collect(t, l))
}

func TestLoaderShufflesBatchOrder(t *testing.T) {
	l := NewLoader(&fakeAccessor{n: 40, failAt: -1}, LoaderOptions{BatchSize: 2, Workers: 2, Shuffle: true, Seed: 3})

	first := collect(t, l)
	second := collect(t, l)

	require.Len(t, first, 20)
	require.NotEqual(t, first, second)

	// batches keep their content, only their order changes
	seen := map[int]bool{}
	for _, batch := range first {
		require.Len(t, batch, 2)
		require.Equal(t, batch[0]+1, batch[1])
		seen[batch[0]] = true
	}
	require.Len(t, seen, 20)
}

func TestLoaderStopsOnDecodeError(t *testing.T) {
	acc := &fakeAccessor{n: 100, failAt: 5}
	l := NewLoader(acc, LoaderOptions{BatchSize: 4, Workers: 2, Prefetch: 1})

	var batches int
	err := l.Each(func(b Batch) error {
		batches++
		return nil
	})

	var dataErr *DataAccessError
	require.True(t, errors.As(err, &dataErr))
	require.Equal(t, 1, batches)
	require.Less(t, acc.calls.Load(), int64(100))
}

func TestLoaderStopsOnCallbackError(t *testing.T) {
	l := NewLoader(&fakeAccessor{n: 50, failAt: -1}, LoaderOptions{BatchSize: 5, Workers: 2, Prefetch: 3})

	boom := errors.New("boom")
	var batches int
	err := l.Each(func(b Batch) error {
		batches++
		if batches == 2 {
			return boom
		}
		return nil
	})

	require.Equal(t, boom, err)
	require.Equal(t, 2, batches)
}
