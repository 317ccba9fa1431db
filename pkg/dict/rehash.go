package dict

import "time"

// rehashChunk is how many buckets RehashFor migrates between clock checks.
const rehashChunk = 100

// rehash migrates up to n non-empty buckets from T[0] to T[1], visiting at
// most 10*n empty buckets along the way. Returns true while more work
// remains; returns false when the migration is done, when no rehash is in
// progress, or when the resize policy blocks migration (forbid, or avoid
// with the table sizes less than forceResizeRatio apart).
func (d *Dict) rehash(n int) bool {
	emptyVisits := n * 10
	if d.cfg.ResizePolicy == ResizeForbid || !d.IsRehashing() {
		return false
	}

	// Under the avoid policy, migration only proceeds once the tables have
	// drifted far enough apart to make finishing worthwhile.
	if d.cfg.ResizePolicy == ResizeAvoid {
		s0, s1 := d.ht[0].size(), d.ht[1].size()
		if (s1 > s0 && s1/s0 < forceResizeRatio) ||
			(s1 < s0 && s0/s1 < forceResizeRatio) {
			return false
		}
	}

	for ; n > 0 && d.ht[0].used != 0; n-- {
		for d.ht[0].buckets[d.rehashIdx] == nil {
			d.rehashIdx++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}
		d.migrateBucket(uint64(d.rehashIdx))
		d.rehashIdx++
	}
	return !d.finishRehashIfDone()
}

// migrateBucket moves every entry of T[0][idx] into T[1].
func (d *Dict) migrateBucket(idx uint64) {
	e := d.ht[0].buckets[idx]
	for e != nil {
		next := e.Next()

		var dst uint64
		if d.ht[1].exp > d.ht[0].exp {
			dst = d.typ.hashKey(e.key) & d.ht[1].mask()
		} else {
			// Shrinking: all entries of one source bucket share their
			// low bits, so the destination is the source index masked.
			dst = idx & d.ht[1].mask()
		}

		head := d.ht[1].buckets[dst]
		if d.typ.NoValue {
			switch {
			case d.typ.CompactKeys && head == nil:
				// Empty destination: collapse to the key-only form.
				e.kind = kindKeyOnly
				e.next = nil
			case e.kind == kindKeyOnly:
				// Key-only entries are terminal; needing a next pointer
				// upgrades them to the no-value form.
				e.kind = kindNoValue
				e.next = head
			default:
				e.setNext(head)
			}
		} else {
			e.setNext(head)
		}
		d.ht[1].buckets[dst] = e
		d.ht[0].used--
		d.ht[1].used++
		metricMigrations.Inc()

		e = next
	}
	d.ht[0].buckets[idx] = nil
}

// finishRehashIfDone retires T[0] once it is empty and promotes T[1].
func (d *Dict) finishRehashIfDone() bool {
	if d.ht[0].used != 0 {
		return false
	}
	d.ht[0] = d.ht[1]
	d.ht[1].reset()
	d.rehashIdx = -1
	d.migration.rehashComplete(d.ht[0].size(), d.ht[0].used)
	return true
}

// RehashSteps migrates up to n non-empty buckets and reports whether more
// work remains. It also reports false while the resize policy blocks
// migration, even though IsRehashing stays true. Explicit rehashing is not
// gated by the pause counter; only the opportunistic per-operation step is.
func (d *Dict) RehashSteps(n int) bool {
	return d.rehash(n)
}

// RehashFor runs chunks of 100 rehash steps until the budget elapses or
// rehashing completes, returning the chunk size once for every chunk after
// which work still remained (the chunk that completes the rehash is not
// counted). A paused Dict returns 0 immediately; pauses set by a scan
// callback are honored here the same as on the hot path.
func (d *Dict) RehashFor(budget time.Duration) int {
	if d.pauseRehash > 0 {
		return 0
	}
	start := time.Now()
	rehashes := 0
	for d.rehash(rehashChunk) {
		rehashes += rehashChunk
		if time.Since(start) > budget {
			break
		}
		if d.pauseRehash > 0 {
			break
		}
	}
	return rehashes
}
