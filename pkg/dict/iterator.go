package dict

import (
	"fmt"
	"unsafe"
)

// Iterator walks every entry of the Dict, table 0 then table 1 while a
// rehash is in flight.
//
// A safe iterator pauses rehashing for its lifetime, so the caller may call
// Find, Insert or Delete while iterating. An unsafe iterator tolerates no
// mutation at all: a fingerprint of the table structure is captured on the
// first advance and re-checked on Release, and a mismatch panics.
//
// The next entry is prefetched before an entry is returned, so deleting the
// current entry through the Dict is always safe with a safe iterator.
type Iterator struct {
	d           *Dict
	tableIdx    int
	bucketIdx   int64
	entry       *Entry
	nextEntry   *Entry
	safe        bool
	fingerprint uint64
}

// Iterator returns an unsafe iterator over the Dict.
func (d *Dict) Iterator() *Iterator {
	return &Iterator{d: d, bucketIdx: -1}
}

// SafeIterator returns an iterator that pauses rehashing while it lives.
func (d *Dict) SafeIterator() *Iterator {
	return &Iterator{d: d, bucketIdx: -1, safe: true}
}

// Next returns the next entry, nil when the iteration is done.
func (it *Iterator) Next() *Entry {
	for {
		if it.entry == nil {
			if it.bucketIdx == -1 && it.tableIdx == 0 {
				if it.safe {
					it.d.pauseRehashing()
				} else {
					it.fingerprint = it.d.fingerprint()
				}
				// Buckets below rehashIdx are already drained.
				if it.d.IsRehashing() {
					it.bucketIdx = it.d.rehashIdx - 1
				}
			}
			it.bucketIdx++
			if it.bucketIdx >= int64(it.d.ht[it.tableIdx].size()) {
				if it.d.IsRehashing() && it.tableIdx == 0 {
					it.tableIdx = 1
					it.bucketIdx = 0
				} else {
					return nil
				}
			}
			it.entry = it.d.ht[it.tableIdx].buckets[it.bucketIdx]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			it.nextEntry = it.entry.Next()
			return it.entry
		}
	}
}

// Release ends the iteration. Unsafe iterators verify here that the Dict
// was not mutated while they were open.
func (it *Iterator) Release() {
	if !(it.bucketIdx == -1 && it.tableIdx == 0) {
		if it.safe {
			it.d.resumeRehashing()
		} else if fp := it.d.fingerprint(); fp != it.fingerprint {
			panic(fmt.Sprintf("dict: table mutated during unsafe iteration (fingerprint %016x != %016x)", fp, it.fingerprint))
		}
	}
	it.d = nil
}

// fingerprint digests the structural state of the Dict: the identities and
// sizes of both bucket arrays and both entry counts, mixed with Wang's
// 64-bit integer hash.
func (d *Dict) fingerprint() uint64 {
	integers := [6]uint64{
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.ht[0].buckets)))),
		d.ht[0].size(),
		d.ht[0].used,
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.ht[1].buckets)))),
		d.ht[1].size(),
		d.ht[1].used,
	}
	var hash uint64
	for _, n := range integers {
		hash += n
		hash = (^hash) + (hash << 21)
		hash ^= hash >> 24
		hash = (hash + (hash << 3)) + (hash << 8)
		hash ^= hash >> 14
		hash = (hash + (hash << 2)) + (hash << 4)
		hash ^= hash >> 28
		hash += hash << 31
	}
	return hash
}
