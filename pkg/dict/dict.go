// Package dict implements the central index of the store: a chained hash
// table with incremental rehashing, randomized sampling and a resize-tolerant
// cursor scan. A table resize is amortized over many operations so no single
// call stalls the host, which matters when the process is forked for
// snapshotting and copy-on-write must not touch every page at once.
//
// A Dict is single-threaded. All operations on one Dict must be serialized
// by the caller.
package dict

import (
	"github.com/pkg/errors"
)

const (
	initialSize      = 4
	initialExp       = 2
	forceResizeRatio = 5

	// emptyProgressInterval is the bucket-index mask for Empty's progress
	// callback: the callback runs whenever the index is a multiple of 65536.
	emptyProgressInterval = 65535
)

var (
	// ErrKeyExists is returned by Insert when the key is already present.
	ErrKeyExists = errors.New("dict: key already exists")

	// ErrNotFound is returned by Delete when the key is absent.
	ErrNotFound = errors.New("dict: key not found")

	// ErrInvalidOperation is returned for requests the current state cannot
	// honor, e.g. resizing to the exponent already in use.
	ErrInvalidOperation = errors.New("dict: invalid operation")
)

// table is one of the Dict's two bucket arrays. exp is the power-of-two size
// exponent, -1 while unallocated.
type table struct {
	buckets []*Entry
	used    uint64
	exp     int8
}

func (t *table) size() uint64 {
	if t.exp < 0 {
		return 0
	}
	return 1 << uint(t.exp)
}

func (t *table) mask() uint64 {
	if t.exp < 0 {
		return 0
	}
	return (1 << uint(t.exp)) - 1
}

func (t *table) reset() {
	t.buckets = nil
	t.used = 0
	t.exp = -1
}

// Dict maps opaque keys to opaque values.
type Dict struct {
	typ *Type
	cfg Config

	ht [2]table

	// rehashIdx is the next T[0] bucket to migrate, -1 when not rehashing.
	rehashIdx int64

	// pauseRehash gates the opportunistic rehash step embedded in the hot
	// path. Positive means paused. Negative is a programming error.
	pauseRehash int

	metadata []byte

	migration *migrationLog
}

// New creates an empty Dict with the given configuration and type vtable.
// No bucket array is allocated until the first insert.
func New(cfg Config, typ *Type) (*Dict, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if typ == nil || typ.Hash == nil {
		return nil, errors.Wrap(ErrInvalidOperation, "type with a hash function is required")
	}
	if typ.NoValue && typ.entryMetadataBytes() > 0 {
		return nil, errors.Wrap(ErrInvalidOperation, "entry metadata and no-value are mutually exclusive")
	}
	if typ.CompactKeys && !typ.NoValue {
		return nil, errors.Wrap(ErrInvalidOperation, "compact keys require a no-value dict")
	}

	d := &Dict{
		typ:       typ,
		cfg:       cfg,
		rehashIdx: -1,
		migration: newMigrationLog(cfg.Logger),
	}
	d.ht[0].reset()
	d.ht[1].reset()
	if typ.MetadataBytes != nil {
		if n := typ.MetadataBytes(); n > 0 {
			d.metadata = make([]byte, n)
		}
	}

	liveDicts.Inc()
	return d, nil
}

// MustNew is New for static configurations known to be valid.
func MustNew(cfg Config, typ *Type) *Dict {
	d, err := New(cfg, typ)
	if err != nil {
		panic(err)
	}
	return d
}

// Len returns the number of entries across both tables.
func (d *Dict) Len() uint64 {
	return d.ht[0].used + d.ht[1].used
}

// Buckets returns the total number of buckets across both tables.
func (d *Dict) Buckets() uint64 {
	return d.ht[0].size() + d.ht[1].size()
}

// Metadata returns the dict-level metadata region, nil unless the type sizes
// one.
func (d *Dict) Metadata() []byte { return d.metadata }

// IsRehashing reports whether a migration between the two tables is in
// progress.
func (d *Dict) IsRehashing() bool { return d.rehashIdx != -1 }

func (d *Dict) pauseRehashing() { d.pauseRehash++ }

func (d *Dict) resumeRehashing() {
	d.pauseRehash--
	if d.pauseRehash < 0 {
		panic("dict: rehash resumed more often than paused")
	}
}

// rehashStep runs one opportunistic migration step unless paused.
func (d *Dict) rehashStep() {
	if d.pauseRehash == 0 {
		d.rehash(1)
	}
}

// Find returns the entry for key, or nil.
func (d *Dict) Find(key any) *Entry {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStep()
	}
	h := d.typ.hashKey(key)
	for tbl := 0; tbl <= 1; tbl++ {
		idx := h & d.ht[tbl].mask()
		// Buckets below rehashIdx in the old table have already moved.
		if tbl == 0 && int64(idx) < d.rehashIdx {
			continue
		}
		for e := d.ht[tbl].buckets[idx]; e != nil; e = e.Next() {
			if key == e.key || d.typ.keysEqual(key, e.key) {
				return e
			}
		}
		if !d.IsRehashing() {
			return nil
		}
	}
	return nil
}

// FetchValue is Find for callers that only want the value.
func (d *Dict) FetchValue(key any) (any, bool) {
	e := d.Find(key)
	if e == nil {
		return nil, false
	}
	return e.Val(), true
}

// Contains reports whether key is present.
func (d *Dict) Contains(key any) bool { return d.Find(key) != nil }

// Position is an insertion point produced by FindPositionForInsert. It must
// be consumed by InsertAtPosition before any other operation on the Dict.
type Position struct {
	bucket **Entry
	table  int
}

// FindPositionForInsert locates the bucket a new key belongs in. If the key
// already exists it returns nil and the existing entry. The two-phase split
// lets a caller build the value only after learning the key is absent.
func (d *Dict) FindPositionForInsert(key any) (*Position, *Entry) {
	h := d.typ.hashKey(key)
	if d.IsRehashing() {
		d.rehashStep()
	}
	if err := d.expandIfNeeded(); err != nil {
		return nil, nil
	}
	var idx uint64
	for tbl := 0; tbl <= 1; tbl++ {
		idx = h & d.ht[tbl].mask()
		if tbl == 0 && int64(idx) < d.rehashIdx {
			continue
		}
		for e := d.ht[tbl].buckets[idx]; e != nil; e = e.Next() {
			if key == e.key || d.typ.keysEqual(key, e.key) {
				return nil, e
			}
		}
		if !d.IsRehashing() {
			break
		}
	}

	// New entries always go to the new table while rehashing.
	tbl := 0
	if d.IsRehashing() {
		tbl = 1
	}
	return &Position{bucket: &d.ht[tbl].buckets[idx], table: tbl}, nil
}

// InsertAtPosition writes a new entry for key at the head of the chain found
// by FindPositionForInsert. KeyDup has already been applied by the caller
// path; this is the raw write.
func (d *Dict) InsertAtPosition(pos *Position, key any) *Entry {
	var e *Entry
	if d.typ.NoValue {
		if d.typ.CompactKeys && *pos.bucket == nil {
			// Empty destination bucket: the key alone is the entry.
			e = newEntryKeyOnly(key)
		} else {
			e = newEntryNoValue(key, *pos.bucket)
		}
	} else {
		e = newEntry(key, nil, *pos.bucket, d.typ.entryMetadataBytes())
	}
	*pos.bucket = e
	d.ht[pos.table].used++
	return e
}

// insertRaw adds key and returns the new entry, or nil and the existing one.
func (d *Dict) insertRaw(key any) (*Entry, *Entry) {
	pos, existing := d.FindPositionForInsert(key)
	if pos == nil {
		return nil, existing
	}
	if d.typ.KeyDup != nil {
		key = d.typ.KeyDup(key)
	}
	return d.InsertAtPosition(pos, key), nil
}

// Insert adds a key/value pair. The key must not already exist.
func (d *Dict) Insert(key, val any) error {
	e, existing := d.insertRaw(key)
	if e == nil {
		if existing == nil {
			return errors.Wrap(ErrInvalidOperation, "table expansion failed")
		}
		return ErrKeyExists
	}
	if !d.typ.NoValue {
		d.setVal(e, val)
	}
	return nil
}

func (d *Dict) setVal(e *Entry, val any) {
	if d.typ.ValDup != nil {
		val = d.typ.ValDup(val)
	}
	e.SetVal(val)
}

// Replace inserts key, or overwrites its value when present. Returns true
// when the key was newly inserted. The new value is installed before the old
// one is destroyed so reference-counted values survive self-replacement.
func (d *Dict) Replace(key, val any) bool {
	e, existing := d.insertRaw(key)
	if e != nil {
		d.setVal(e, val)
		return true
	}
	old := existing.Val()
	d.setVal(existing, val)
	if d.typ.ValDestructor != nil {
		d.typ.ValDestructor(old)
	}
	return false
}

// delete unlinks the entry for key from its chain. With free set the entry
// is destroyed, otherwise it is returned detached.
func (d *Dict) delete(key any, free bool) *Entry {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStep()
	}
	h := d.typ.hashKey(key)
	for tbl := 0; tbl <= 1; tbl++ {
		idx := h & d.ht[tbl].mask()
		if tbl == 0 && int64(idx) < d.rehashIdx {
			continue
		}
		var prev *Entry
		for e := d.ht[tbl].buckets[idx]; e != nil; e = e.Next() {
			if key == e.key || d.typ.keysEqual(key, e.key) {
				if prev != nil {
					prev.setNext(e.Next())
				} else {
					d.ht[tbl].buckets[idx] = e.Next()
				}
				d.ht[tbl].used--
				if free {
					d.freeEntry(e)
				}
				return e
			}
			prev = e
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil
}

// Delete removes key, running the key and value destructors.
func (d *Dict) Delete(key any) error {
	if d.delete(key, true) == nil {
		return ErrNotFound
	}
	return nil
}

// Unlink removes key from the table but keeps the entry alive and returns it
// detached, destructors not run. Pair with FreeUnlinked.
func (d *Dict) Unlink(key any) *Entry {
	return d.delete(key, false)
}

// FreeUnlinked destroys an entry previously detached with Unlink.
func (d *Dict) FreeUnlinked(e *Entry) {
	if e == nil {
		return
	}
	d.freeEntry(e)
}

func (d *Dict) freeEntry(e *Entry) {
	if d.typ.KeyDestructor != nil {
		d.typ.KeyDestructor(e.key)
	}
	if d.typ.ValDestructor != nil && e.hasValue() {
		d.typ.ValDestructor(e.val)
	}
	e.key = nil
	e.val = nil
	e.next = nil
	e.meta = nil
}

// TwoPhaseUnlinkFind locates key and pauses rehashing, so the caller may
// inspect the entry while the table cannot mutate underneath. The returned
// link is consumed by TwoPhaseUnlinkFree, which also resumes rehashing.
func (d *Dict) TwoPhaseUnlinkFind(key any) (*Entry, **Entry, int) {
	if d.Len() == 0 {
		return nil, nil, 0
	}
	if d.IsRehashing() {
		d.rehashStep()
	}
	h := d.typ.hashKey(key)
	for tbl := 0; tbl <= 1; tbl++ {
		idx := h & d.ht[tbl].mask()
		if tbl == 0 && int64(idx) < d.rehashIdx {
			continue
		}
		link := &d.ht[tbl].buckets[idx]
		for *link != nil {
			e := *link
			if key == e.key || d.typ.keysEqual(key, e.key) {
				d.pauseRehashing()
				return e, link, tbl
			}
			link = &e.next
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil, nil, 0
}

// TwoPhaseUnlinkFree unlinks and destroys an entry found by
// TwoPhaseUnlinkFind and resumes rehashing. Accepts a nil entry so callers
// can pass a miss straight through.
func (d *Dict) TwoPhaseUnlinkFree(e *Entry, link **Entry, tableIdx int) {
	if e == nil {
		return
	}
	d.ht[tableIdx].used--
	*link = e.Next()
	d.freeEntry(e)
	d.resumeRehashing()
}

// clearTable frees every entry of one table and resets it. The callback, if
// any, runs every 65536 buckets so a huge flush can report progress.
func (d *Dict) clearTable(tbl int, callback func(*Dict)) {
	t := &d.ht[tbl]
	for i := uint64(0); i < t.size() && t.used > 0; i++ {
		if callback != nil && i&emptyProgressInterval == 0 {
			callback(d)
		}
		for e := t.buckets[i]; e != nil; {
			next := e.Next()
			d.freeEntry(e)
			t.used--
			e = next
		}
	}
	t.reset()
}

// Empty removes all entries in place, keeping the Dict usable.
func (d *Dict) Empty(callback func(*Dict)) {
	d.clearTable(0, callback)
	d.clearTable(1, callback)
	d.rehashIdx = -1
	d.pauseRehash = 0
}

// Release destroys the Dict, running destructors for every live key and
// value. The Dict must not be used afterwards.
func (d *Dict) Release() {
	d.clearTable(0, nil)
	d.clearTable(1, nil)
	d.rehashIdx = -1
	liveDicts.Dec()
}
