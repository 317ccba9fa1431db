package dict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringTypeSeedChangesHashes(t *testing.T) {
	a := StringType(testSeed)
	b := StringType([16]byte{0xff})

	require.Equal(t, a.Hash("key"), a.Hash("key"))
	require.NotEqual(t, a.Hash("key"), b.Hash("key"))
	require.True(t, a.KeyCompare("key", "key"))
	require.False(t, a.KeyCompare("key", "other"))
}

func TestXXHashStringType(t *testing.T) {
	typ := XXHashStringType()
	d, err := New(testConfig(), typ)
	require.NoError(t, err)
	defer d.Release()

	for i := 0; i < 1000; i++ {
		require.NoError(t, d.Insert(fmt.Sprintf("k%d", i), int64(i)))
	}
	for i := 0; i < 1000; i++ {
		require.Equal(t, int64(i), d.Find(fmt.Sprintf("k%d", i)).Int64Val())
	}
}

func TestUint64SetType(t *testing.T) {
	d, err := New(testConfig(), Uint64SetType())
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Insert(uint64(42), nil))
	require.ErrorIs(t, d.Insert(uint64(42), nil), ErrKeyExists)
	require.NotNil(t, d.Find(uint64(42)))
	require.Nil(t, d.Find(uint64(43)))
}

func TestDefaultKeyCompareIsIdentity(t *testing.T) {
	typ := &Type{Hash: func(key any) uint64 { return 1 }}
	d, err := New(testConfig(), typ)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Insert(1, "a"))
	require.NoError(t, d.Insert(2, "b"))
	require.NotNil(t, d.Find(1))
	require.Equal(t, "b", d.Find(2).Val())
}
