package dict

import (
	"fmt"
	"strings"
)

// histogramBuckets is the chain-length histogram width; the last bucket
// counts every chain at least that long.
const histogramBuckets = 50

// TableStats describes one of the two bucket arrays.
type TableStats struct {
	// Table is 0 for the main table, 1 for the rehash target.
	Table int

	Size    uint64
	Used    uint64
	Buckets uint64 // distinct non-empty buckets

	MaxChainLen uint64

	// AvgChainLenCounted is entries divided by non-empty buckets, counted
	// by walking the chains; AvgChainLenComputed is entries divided by
	// non-empty buckets using the bookkept counters. The two disagree only
	// when the bookkeeping is broken.
	AvgChainLenCounted  float64
	AvgChainLenComputed float64

	// ChainLengths[i] counts buckets whose chain holds i entries;
	// ChainLengths[49] counts chains of 49 or more.
	ChainLengths [histogramBuckets]uint64
}

// Stats is a point-in-time structural report of the Dict.
type Stats struct {
	Rehashing bool
	Tables    []TableStats
}

// Stats walks both tables and reports their layout. Intended for debugging
// and the operator CLI; it touches every bucket.
func (d *Dict) Stats() *Stats {
	s := &Stats{Rehashing: d.IsRehashing()}
	s.Tables = append(s.Tables, d.tableStats(0))
	if d.IsRehashing() {
		s.Tables = append(s.Tables, d.tableStats(1))
	}
	return s
}

func (d *Dict) tableStats(tbl int) TableStats {
	t := &d.ht[tbl]
	ts := TableStats{Table: tbl, Size: t.size(), Used: t.used}
	if t.size() == 0 {
		return ts
	}

	totalLen := uint64(0)
	for _, head := range t.buckets {
		if head == nil {
			ts.ChainLengths[0]++
			continue
		}
		chainLen := uint64(0)
		for e := head; e != nil; e = e.Next() {
			chainLen++
		}
		idx := chainLen
		if idx >= histogramBuckets {
			idx = histogramBuckets - 1
		}
		ts.ChainLengths[idx]++
		if chainLen > ts.MaxChainLen {
			ts.MaxChainLen = chainLen
		}
		ts.Buckets++
		totalLen += chainLen
	}
	if ts.Buckets > 0 {
		ts.AvgChainLenCounted = float64(totalLen) / float64(ts.Buckets)
		ts.AvgChainLenComputed = float64(t.used) / float64(ts.Buckets)
	}
	return ts
}

// String renders the report in a human-readable form.
func (s *Stats) String() string {
	var b strings.Builder
	for _, ts := range s.Tables {
		name := "main hash table"
		if ts.Table == 1 {
			name = "rehashing target"
		}
		fmt.Fprintf(&b, "Hash table %d stats (%s):\n", ts.Table, name)
		if ts.Size == 0 {
			b.WriteString(" No stats available for empty dictionaries\n")
			continue
		}
		fmt.Fprintf(&b, " table size: %d\n", ts.Size)
		fmt.Fprintf(&b, " number of elements: %d\n", ts.Used)
		fmt.Fprintf(&b, " different slots: %d\n", ts.Buckets)
		fmt.Fprintf(&b, " max chain length: %d\n", ts.MaxChainLen)
		fmt.Fprintf(&b, " avg chain length (counted): %.02f\n", ts.AvgChainLenCounted)
		fmt.Fprintf(&b, " avg chain length (computed): %.02f\n", ts.AvgChainLenComputed)
		b.WriteString(" Chain length distribution:\n")
		for i, n := range ts.ChainLengths {
			if n == 0 {
				continue
			}
			if i == histogramBuckets-1 {
				fmt.Fprintf(&b, "   %d+: %d (%.02f%%)\n", i, n, float64(n)/float64(ts.Size)*100)
			} else {
				fmt.Fprintf(&b, "   %d: %d (%.02f%%)\n", i, n, float64(n)/float64(ts.Size)*100)
			}
		}
	}
	return b.String()
}
