package dict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memdex/memdex/pkg/util"
)

var testSeed = [16]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}

func testConfig() Config {
	return Config{
		ResizePolicy: ResizeEnable,
		HashSeed:     "000102030405060708090a0b0c0d0e0f",
		Rand:         util.NewSource(testSeed),
	}
}

func newTestDict(t *testing.T) *Dict {
	t.Helper()
	d, err := New(testConfig(), StringType(testSeed))
	require.NoError(t, err)
	return d
}

// countingType wraps the string type with destructor and dup counters.
type countingType struct {
	typ          *Type
	keyDestroyed map[string]int
	valDestroyed map[int64]int
}

func newCountingType() *countingType {
	c := &countingType{
		typ:          StringType(testSeed),
		keyDestroyed: map[string]int{},
		valDestroyed: map[int64]int{},
	}
	c.typ.KeyDestructor = func(key any) { c.keyDestroyed[key.(string)]++ }
	c.typ.ValDestructor = func(val any) { c.valDestroyed[val.(int64)]++ }
	return c
}

func TestInsertFind(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	require.NoError(t, d.Insert("a", int64(1)))
	require.NoError(t, d.Insert("b", int64(2)))
	require.NoError(t, d.Insert("c", int64(3)))

	e := d.Find("b")
	require.NotNil(t, e)
	require.Equal(t, int64(2), e.Int64Val())
	require.EqualValues(t, 3, d.Len())
	require.EqualValues(t, 3, d.ht[0].used+d.ht[1].used)

	require.Nil(t, d.Find("missing"))
	v, ok := d.FetchValue("c")
	require.True(t, ok)
	require.Equal(t, int64(3), v)
}

func TestInsertDuplicate(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	require.NoError(t, d.Insert("a", int64(1)))
	require.ErrorIs(t, d.Insert("a", int64(2)), ErrKeyExists)
	require.Equal(t, int64(1), d.Find("a").Int64Val())
}

func TestFirstInsertInstallsInitialTable(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	require.EqualValues(t, -1, d.ht[0].exp)
	require.NoError(t, d.Insert("a", int64(1)))
	require.EqualValues(t, initialSize, d.ht[0].size())
	require.False(t, d.IsRehashing())
}

func TestGrowTriggersOnNextInsertAfterFull(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	for i := 0; i < initialSize; i++ {
		require.NoError(t, d.Insert(fmt.Sprintf("k%d", i), int64(i)))
	}
	// Exactly full: load factor 1, not yet rehashing.
	require.EqualValues(t, initialSize, d.ht[0].used)
	require.False(t, d.IsRehashing())

	require.NoError(t, d.Insert("one-more", int64(99)))
	require.True(t, d.IsRehashing())
	require.EqualValues(t, 2*initialSize, d.ht[1].size())
}

func TestReplace(t *testing.T) {
	ct := newCountingType()
	d, err := New(testConfig(), ct.typ)
	require.NoError(t, err)
	defer d.Release()

	require.True(t, d.Replace("a", int64(1)))
	require.False(t, d.Replace("a", int64(2)))

	require.Equal(t, int64(2), d.Find("a").Int64Val())
	require.Equal(t, 1, ct.valDestroyed[1])
	require.Equal(t, 0, ct.valDestroyed[2])
	require.EqualValues(t, 1, d.Len())
}

func TestDeleteRunsDestructorsOnce(t *testing.T) {
	ct := newCountingType()
	d, err := New(testConfig(), ct.typ)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Insert("a", int64(1)))
	require.NoError(t, d.Insert("b", int64(2)))

	require.NoError(t, d.Delete("a"))
	require.ErrorIs(t, d.Delete("a"), ErrNotFound)

	require.Nil(t, d.Find("a"))
	require.EqualValues(t, 1, d.Len())
	require.Equal(t, 1, ct.keyDestroyed["a"])
	require.Equal(t, 1, ct.valDestroyed[1])
	require.Equal(t, 0, ct.keyDestroyed["b"])
}

func TestUnlinkThenFree(t *testing.T) {
	ct := newCountingType()
	d, err := New(testConfig(), ct.typ)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Insert("a", int64(1)))

	e := d.Unlink("a")
	require.NotNil(t, e)
	require.Nil(t, d.Find("a"))
	require.EqualValues(t, 0, d.Len())

	// Detached entry is still intact for the caller.
	require.Equal(t, "a", e.Key())
	require.Equal(t, int64(1), e.Int64Val())
	require.Equal(t, 0, ct.keyDestroyed["a"])

	d.FreeUnlinked(e)
	require.Equal(t, 1, ct.keyDestroyed["a"])
	require.Equal(t, 1, ct.valDestroyed[1])

	require.Nil(t, d.Unlink("missing"))
}

func TestTwoPhaseUnlink(t *testing.T) {
	ct := newCountingType()
	d, err := New(testConfig(), ct.typ)
	require.NoError(t, err)
	defer d.Release()

	for i := 0; i < 100; i++ {
		require.NoError(t, d.Insert(fmt.Sprintf("k%d", i), int64(i)))
	}

	e, link, tbl := d.TwoPhaseUnlinkFind("k42")
	require.NotNil(t, e)
	require.Equal(t, 1, d.pauseRehash)

	// The entry is observable while the table is guaranteed stable.
	require.Equal(t, int64(42), e.Int64Val())

	d.TwoPhaseUnlinkFree(e, link, tbl)
	require.Equal(t, 0, d.pauseRehash)
	require.Nil(t, d.Find("k42"))
	require.EqualValues(t, 99, d.Len())
	require.Equal(t, 1, ct.keyDestroyed["k42"])

	e, _, _ = d.TwoPhaseUnlinkFind("missing")
	require.Nil(t, e)
	require.Equal(t, 0, d.pauseRehash)
}

func TestKeyDup(t *testing.T) {
	typ := StringType(testSeed)
	dups := 0
	typ.KeyDup = func(key any) any {
		dups++
		return key.(string)
	}
	d, err := New(testConfig(), typ)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Insert("a", int64(1)))
	require.Equal(t, 1, dups)
	// Failed insert must not duplicate the key.
	require.Error(t, d.Insert("a", int64(2)))
	require.Equal(t, 1, dups)
}

func TestTwoPhaseInsert(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	pos, existing := d.FindPositionForInsert("a")
	require.NotNil(t, pos)
	require.Nil(t, existing)

	e := d.InsertAtPosition(pos, "a")
	e.SetVal(int64(1))
	require.EqualValues(t, 1, d.Len())
	require.Equal(t, int64(1), d.Find("a").Int64Val())

	pos, existing = d.FindPositionForInsert("a")
	require.Nil(t, pos)
	require.NotNil(t, existing)
	require.Equal(t, int64(1), existing.Int64Val())
}

func TestEmpty(t *testing.T) {
	ct := newCountingType()
	d, err := New(testConfig(), ct.typ)
	require.NoError(t, err)
	defer d.Release()

	n := 10000
	for i := 0; i < n; i++ {
		require.NoError(t, d.Insert(fmt.Sprintf("k%d", i), int64(i)))
	}

	calls := 0
	d.Empty(func(*Dict) { calls++ })

	require.EqualValues(t, 0, d.Len())
	require.EqualValues(t, -1, d.ht[0].exp)
	require.False(t, d.IsRehashing())
	require.GreaterOrEqual(t, calls, 1)
	require.Len(t, ct.keyDestroyed, n)

	// Still usable after Empty.
	require.NoError(t, d.Insert("again", int64(1)))
	require.EqualValues(t, 1, d.Len())
}

func TestNoValueDict(t *testing.T) {
	typ := StringType(testSeed)
	typ.NoValue = true
	d, err := New(testConfig(), typ)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Insert("member", nil))
	e := d.Find("member")
	require.NotNil(t, e)
	require.Equal(t, "member", e.Key())
	require.Panics(t, func() { e.Val() })
}

func TestCompactKeysDict(t *testing.T) {
	d, err := New(testConfig(), Uint64SetType())
	require.NoError(t, err)
	defer d.Release()

	n := uint64(10000)
	for i := uint64(0); i < n; i++ {
		require.NoError(t, d.Insert(i, nil))
	}
	for d.RehashSteps(100) {
	}
	require.EqualValues(t, n, d.Len())

	for i := uint64(0); i < n; i++ {
		require.NotNil(t, d.Find(i), "member %d", i)
	}

	// Every chain must end in a terminal entry and only use the compact
	// representations.
	for tbl := 0; tbl <= 1; tbl++ {
		for _, head := range d.ht[tbl].buckets {
			for e := head; e != nil; e = e.Next() {
				require.Contains(t, []entryKind{kindNoValue, kindKeyOnly}, e.kind)
				if e.kind == kindKeyOnly {
					require.Nil(t, e.Next())
				}
			}
		}
	}

	for i := uint64(0); i < n; i += 2 {
		require.NoError(t, d.Delete(i))
	}
	require.EqualValues(t, n/2, d.Len())
	for i := uint64(1); i < n; i += 2 {
		require.NotNil(t, d.Find(i))
	}
}

func TestEntryMetadata(t *testing.T) {
	typ := StringType(testSeed)
	typ.EntryMetadataBytes = func() int { return 8 }
	d, err := New(testConfig(), typ)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Insert("a", int64(1)))
	e := d.Find("a")
	require.Len(t, e.Metadata(), 8)
	e.Metadata()[0] = 0xff
	require.Equal(t, byte(0xff), d.Find("a").Metadata()[0])
}

func TestDictMetadata(t *testing.T) {
	typ := StringType(testSeed)
	typ.MetadataBytes = func() int { return 16 }
	d, err := New(testConfig(), typ)
	require.NoError(t, err)
	defer d.Release()

	require.Len(t, d.Metadata(), 16)
	for _, b := range d.Metadata() {
		require.Zero(t, b)
	}
}

func TestNewRejectsBrokenTypes(t *testing.T) {
	_, err := New(testConfig(), nil)
	require.Error(t, err)

	typ := StringType(testSeed)
	typ.NoValue = true
	typ.EntryMetadataBytes = func() int { return 8 }
	_, err = New(testConfig(), typ)
	require.Error(t, err)

	typ = StringType(testSeed)
	typ.CompactKeys = true
	_, err = New(testConfig(), typ)
	require.Error(t, err)
}

func TestValueAccessors(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	require.NoError(t, d.Insert("i", int64(-5)))
	require.NoError(t, d.Insert("u", uint64(5)))
	require.NoError(t, d.Insert("f", 2.5))

	require.Equal(t, int64(-3), d.Find("i").IncrInt64Val(2))
	require.Equal(t, uint64(7), d.Find("u").IncrUint64Val(2))
	require.Equal(t, 3.0, d.Find("f").IncrFloat64Val(0.5))

	require.Equal(t, int64(-3), d.Find("i").Int64Val())
	require.Equal(t, uint64(7), d.Find("u").Uint64Val())
	require.Equal(t, 3.0, d.Find("f").Float64Val())
}

func TestMillionKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 1M key test in short mode")
	}

	d := newTestDict(t)
	defer d.Release()

	n := 1_000_000
	for i := 0; i < n; i++ {
		require.NoError(t, d.Insert("k"+fmt.Sprint(i), int64(i)))
		if i%7 == 0 {
			d.RehashSteps(1)
		}
	}
	for d.RehashSteps(100) {
	}

	require.False(t, d.IsRehashing())
	require.EqualValues(t, -1, d.rehashIdx)
	require.EqualValues(t, 0, d.ht[1].used)
	require.EqualValues(t, 1<<20, d.ht[0].size())
	require.EqualValues(t, n, d.ht[0].used)

	for i := 0; i < n; i++ {
		e := d.Find("k" + fmt.Sprint(i))
		require.NotNil(t, e, "key k%d", i)
		require.Equal(t, int64(i), e.Int64Val())
	}
}

func TestDeleteThenResizeShrinks(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	n := 1024
	for i := 0; i < n; i++ {
		require.NoError(t, d.Insert(fmt.Sprintf("k%d", i), int64(i)))
	}
	for d.RehashSteps(100) {
	}

	for i := 0; i < n*3/4; i++ {
		require.NoError(t, d.Delete(fmt.Sprintf("k%d", i)))
	}

	require.NoError(t, d.Resize())
	for d.RehashSteps(100) {
	}

	used := d.ht[0].used
	require.EqualValues(t, n/4, used)
	require.GreaterOrEqual(t, d.ht[0].size(), uint64(initialSize))
	require.LessOrEqual(t, d.ht[0].size(), 2*used)

	for i := n * 3 / 4; i < n; i++ {
		require.NotNil(t, d.Find(fmt.Sprintf("k%d", i)))
	}
}

func TestFindAfterManyOperations(t *testing.T) {
	d := newTestDict(t)
	defer d.Release()

	live := map[string]int64{}
	rng := util.NewSource(testSeed)
	for i := 0; i < 20000; i++ {
		key := fmt.Sprintf("k%d", rng()%5000)
		switch rng() % 3 {
		case 0:
			if err := d.Insert(key, int64(i)); err == nil {
				live[key] = int64(i)
			}
		case 1:
			d.Replace(key, int64(i))
			live[key] = int64(i)
		case 2:
			if err := d.Delete(key); err == nil {
				delete(live, key)
			}
		}
	}

	require.EqualValues(t, len(live), d.Len())
	for k, v := range live {
		e := d.Find(k)
		require.NotNil(t, e, "key %s", k)
		require.Equal(t, v, e.Int64Val())
	}
}
