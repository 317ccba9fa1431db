package dict

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/segmentio/fasthash/fnv1a"
)

// Type is the vtable a Dict is created with. It encodes every point of
// polymorphism: hashing, comparison, ownership of keys and values, the
// expansion veto and the metadata hooks. Nil function fields fall back to
// identity semantics (pointer/interface equality, borrowed keys and values,
// no veto, no metadata).
type Type struct {
	// Hash produces a 64-bit digest of the key.
	Hash func(key any) uint64

	// KeyCompare reports key equality. When nil, keys match on interface
	// equality.
	KeyCompare func(a, b any) bool

	// KeyDup, when set, is applied to the caller's key on insert; the dict
	// then owns the duplicate and runs KeyDestructor on it.
	KeyDup func(key any) any

	// ValDup, when set, is applied to values stored by Insert and Replace.
	// Entry.SetVal stores its argument as is.
	ValDup func(val any) any

	// KeyDestructor and ValDestructor release dict-owned keys and values.
	KeyDestructor func(key any)
	ValDestructor func(val any)

	// ExpandAllowed may veto a specific expansion, e.g. to refuse a large
	// allocation under memory pressure. It receives the byte size of the
	// bucket array about to be allocated and the current load ratio.
	ExpandAllowed func(allocBytes uint64, usedRatio float64) bool

	// EntryMetadataBytes sizes the per-entry metadata region, zeroed on
	// entry creation. Mutually exclusive with NoValue.
	EntryMetadataBytes func() int

	// MetadataBytes sizes the dict-level metadata region, zeroed at
	// creation time.
	MetadataBytes func() int

	// AfterReplaceEntry is invoked whenever an entry is relocated in place
	// (see ScanDefrag). Required when entries carry metadata that external
	// structures point into.
	AfterReplaceEntry func(e *Entry)

	// NoValue declares that values are never stored. Entries use the
	// compact representations and the value accessors panic.
	NoValue bool

	// CompactKeys additionally permits the key-only terminal
	// representation. Only meaningful together with NoValue.
	CompactKeys bool
}

func (t *Type) hashKey(key any) uint64 {
	return t.Hash(key)
}

func (t *Type) keysEqual(a, b any) bool {
	if t.KeyCompare != nil {
		return t.KeyCompare(a, b)
	}
	return a == b
}

func (t *Type) entryMetadataBytes() int {
	if t.EntryMetadataBytes == nil {
		return 0
	}
	return t.EntryMetadataBytes()
}

// StringType returns a Type for string keys hashed with SipHash-2-4 under
// the given 128-bit seed. This is the default type of the store: the seed
// keeps chain lengths unpredictable to an attacker supplying keys.
func StringType(seed [16]byte) *Type {
	k0, k1 := seedKeys(seed)
	return &Type{
		Hash: func(key any) uint64 {
			return siphash.Hash(k0, k1, []byte(key.(string)))
		},
		KeyCompare: func(a, b any) bool {
			return a.(string) == b.(string)
		},
	}
}

// XXHashStringType returns a Type for string keys hashed with xxhash. Faster
// than the seeded default but unkeyed; for trusted key sets only.
func XXHashStringType() *Type {
	return &Type{
		Hash: func(key any) uint64 {
			return xxhash.Sum64String(key.(string))
		},
		KeyCompare: func(a, b any) bool {
			return a.(string) == b.(string)
		},
	}
}

// Uint64SetType returns a no-value Type for uint64 members, using the
// compact key-only representation where possible.
func Uint64SetType() *Type {
	return &Type{
		Hash: func(key any) uint64 {
			return fnv1a.HashUint64(key.(uint64))
		},
		KeyCompare: func(a, b any) bool {
			return a.(uint64) == b.(uint64)
		},
		NoValue:     true,
		CompactKeys: true,
	}
}
