package dict

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextExp(t *testing.T) {
	tests := []struct {
		size uint64
		exp  int8
	}{
		{0, initialExp},
		{1, initialExp},
		{3, initialExp},
		{4, initialExp},
		{5, 3},
		{8, 3},
		{9, 4},
		{1 << 20, 20},
		{1<<20 + 1, 21},
		{math.MaxInt64, 63},
		{math.MaxUint64, 63},
	}
	for _, tc := range tests {
		require.Equal(t, tc.exp, nextExp(tc.size), "size %d", tc.size)
	}
}

func TestExpandSmallerThanUsedRejected(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()
	fillDict(t, d, 100)
	for d.RehashSteps(100) {
	}

	require.ErrorIs(t, d.Expand(10), ErrInvalidOperation)
}

func TestExpandWhileRehashingRejected(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()
	fillDict(t, d, 1030)
	require.True(t, d.IsRehashing())

	require.ErrorIs(t, d.Expand(1<<14), ErrInvalidOperation)
}

func TestTryExpandLeavesDictUsable(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()
	fillDict(t, d, 10)

	require.Error(t, d.TryExpand(1))
	require.EqualValues(t, 10, d.Len())
	// Expansion is refused mid-rehash, so let the migration started by the
	// inserts finish first.
	for d.RehashSteps(100) {
	}
	require.NoError(t, d.TryExpand(1024))
	for d.RehashSteps(100) {
	}
	require.EqualValues(t, 1024, d.ht[0].size())
	require.EqualValues(t, 10, d.Len())
}

func TestLoadFactorAfterGrow(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	for i := 0; i < 100000; i++ {
		require.NoError(t, d.Insert(fmt.Sprintf("k%d", i), int64(i)))
		// After any successful grow the load factor stays at or below 1
		// until the next insert trips the trigger again.
		if !d.IsRehashing() {
			require.LessOrEqual(t, d.ht[0].used, d.ht[0].size())
		}
	}
}
