package dict

import "math/bits"

// ScanFunc receives each visited entry.
type ScanFunc func(e *Entry)

// DefragFuncs are per-call relocation hooks for ScanDefrag. Each receives a
// live allocation and returns its replacement, or nil to leave it in place.
type DefragFuncs struct {
	Entry func(e *Entry) *Entry
	Key   func(key any) any
	Val   func(val any) any
}

// Scan iterates the Dict in stateless cursor steps. Start with cursor 0 and
// feed each returned cursor back in; iteration is complete when Scan returns
// 0 again.
//
// The cursor is incremented from its high bits (reverse binary increment),
// which keeps iteration sound across table grows and shrinks between calls:
// every entry present for the whole scan is visited at least once, entries
// inserted mid-scan may or may not be, and resizes can cause duplicate
// visits, which the caller must tolerate. Rehashing is paused for the
// duration of one call, so fn may call back into the Dict.
func (d *Dict) Scan(cursor uint64, fn ScanFunc) uint64 {
	return d.scan(cursor, fn, nil)
}

// ScanDefrag is Scan with relocation hooks applied to every visited bucket's
// entries, keys and values. When an entry is relocated the type's
// AfterReplaceEntry hook runs, so external pointers into entry metadata can
// be fixed up.
func (d *Dict) ScanDefrag(cursor uint64, fn ScanFunc, defrag *DefragFuncs) uint64 {
	return d.scan(cursor, fn, defrag)
}

func (d *Dict) scan(v uint64, fn ScanFunc, defrag *DefragFuncs) uint64 {
	if d.Len() == 0 {
		return 0
	}

	d.pauseRehashing()
	defer d.resumeRehashing()

	if !d.IsRehashing() {
		m0 := d.ht[0].mask()
		d.scanBucket(&d.ht[0].buckets[v&m0], fn, defrag)
		return nextCursor(v, m0)
	}

	// Two tables: visit the small one's bucket, then every big-table
	// bucket that projects onto it.
	t0, t1 := 0, 1
	if d.ht[t0].size() > d.ht[t1].size() {
		t0, t1 = t1, t0
	}
	m0 := d.ht[t0].mask()
	m1 := d.ht[t1].mask()

	d.scanBucket(&d.ht[t0].buckets[v&m0], fn, defrag)
	for {
		d.scanBucket(&d.ht[t1].buckets[v&m1], fn, defrag)
		v = nextCursor(v, m1)

		// Done when the bits distinguishing the two masks roll back to
		// zero.
		if v&(m0^m1) == 0 {
			break
		}
	}
	return v
}

// nextCursor advances the cursor from its high bits: the bits outside the
// mask are forced on, then the increment is applied in reversed bit order.
func nextCursor(v, mask uint64) uint64 {
	v |= ^mask
	v = bits.Reverse64(v)
	v++
	return bits.Reverse64(v)
}

// scanBucket emits one chain, applying relocation hooks first when present.
func (d *Dict) scanBucket(bucket **Entry, fn ScanFunc, defrag *DefragFuncs) {
	if defrag != nil {
		d.defragBucket(bucket, defrag)
	}
	for e := *bucket; e != nil; e = e.Next() {
		fn(e)
	}
}

func (d *Dict) defragBucket(bucket **Entry, defrag *DefragFuncs) {
	link := bucket
	for *link != nil {
		e := *link
		if defrag.Entry != nil {
			if ne := defrag.Entry(e); ne != nil {
				*link = ne
				e = ne
				if d.typ.AfterReplaceEntry != nil {
					d.typ.AfterReplaceEntry(e)
				}
			}
		}
		if defrag.Key != nil {
			if nk := defrag.Key(e.key); nk != nil {
				e.key = nk
			}
		}
		if defrag.Val != nil && e.hasValue() {
			if nv := defrag.Val(e.val); nv != nil {
				e.val = nv
			}
		}
		if e.kind == kindKeyOnly {
			break
		}
		link = &e.next
	}
}
