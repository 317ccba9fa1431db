package dict

// RandomEntry returns a random entry, nil when the Dict is empty. Selection
// picks a random non-empty bucket and then a uniform position in its chain,
// which biases toward entries in short chains; good enough for eviction
// sampling.
func (d *Dict) RandomEntry() *Entry {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStep()
	}

	var e *Entry
	if d.IsRehashing() {
		s0, s1 := d.ht[0].size(), d.ht[1].size()
		for e == nil {
			// Indices below rehashIdx in T[0] are already drained, so
			// draw from the remaining window of both tables.
			h := uint64(d.rehashIdx) + d.cfg.Rand()%(s0+s1-uint64(d.rehashIdx))
			if h >= s0 {
				e = d.ht[1].buckets[h-s0]
			} else {
				e = d.ht[0].buckets[h]
			}
		}
	} else {
		m := d.ht[0].mask()
		for e == nil {
			e = d.ht[0].buckets[d.cfg.Rand()&m]
		}
	}

	chainLen := uint64(0)
	for he := e; he != nil; he = he.Next() {
		chainLen++
	}
	for skip := d.cfg.Rand() % chainLen; skip > 0; skip-- {
		e = e.Next()
	}
	return e
}

// SomeEntries collects up to count entries with a linear sweep from a random
// position, reservoir-sampling once count entries are held. It may return
// fewer than count entries; work is bounded by count*10 bucket visits. Not
// uniform, but spreads the sample across the table better than repeated
// RandomEntry calls.
func (d *Dict) SomeEntries(count int) []*Entry {
	if n := d.Len(); uint64(count) > n {
		count = int(n)
	}
	if count == 0 {
		return nil
	}

	// A few rehash steps up front reduce the window where both tables need
	// sweeping.
	for j := 0; j < count; j++ {
		if !d.IsRehashing() {
			break
		}
		d.rehashStep()
	}

	tables := 1
	maxMask := d.ht[0].mask()
	if d.IsRehashing() {
		tables = 2
		if d.ht[1].mask() > maxMask {
			maxMask = d.ht[1].mask()
		}
	}

	des := make([]*Entry, count)
	stored := 0
	emptyLen := 0
	i := d.cfg.Rand() & maxMask
	for steps := count * 10; stored < count && steps > 0; steps-- {
		for j := 0; j < tables; j++ {
			// While rehashing, everything below rehashIdx in T[0] has
			// moved to T[1].
			if tables == 2 && j == 0 && i < uint64(d.rehashIdx) {
				if i >= d.ht[1].size() {
					i = uint64(d.rehashIdx)
				} else {
					continue
				}
			}
			if i >= d.ht[j].size() {
				continue
			}
			he := d.ht[j].buckets[i]

			// Long empty runs trigger a jump to a fresh random position.
			if he == nil {
				emptyLen++
				if emptyLen >= 5 && emptyLen > count {
					i = d.cfg.Rand() & maxMask
					emptyLen = 0
				}
				continue
			}
			emptyLen = 0
			for he != nil {
				if stored < count {
					des[stored] = he
				} else if r := d.cfg.Rand() % uint64(stored+1); r < uint64(count) {
					des[r] = he
				}
				he = he.Next()
				stored++
			}
			if stored >= count {
				return des
			}
		}
		i = (i + 1) & maxMask
	}
	if stored < count {
		des = des[:stored]
	}
	return des
}

// fairSampleSize is how many entries FairRandomEntry draws before picking
// one. Larger samples cost more but further flatten the chain-length bias.
const fairSampleSize = 15

// FairRandomEntry returns a random entry with a distribution noticeably less
// biased by chain length than RandomEntry.
func (d *Dict) FairRandomEntry() *Entry {
	entries := d.SomeEntries(fairSampleSize)
	if len(entries) == 0 {
		return d.RandomEntry()
	}
	return entries[d.cfg.Rand()%uint64(len(entries))]
}
