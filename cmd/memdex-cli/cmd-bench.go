package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/memdex/memdex/pkg/dict"
)

// buildType maps the configured hash function to a dict type.
func buildType() (*dict.Type, error) {
	switch cfg.HashFunction {
	case "siphash":
		seed, err := cfg.Dict.Seed()
		if err != nil {
			return nil, err
		}
		return dict.StringType(seed), nil
	case "xxhash":
		return dict.XXHashStringType(), nil
	default:
		return nil, errors.Errorf("unknown hash function %q", cfg.HashFunction)
	}
}

// benchKey derives the i-th bench key. Indexes run through fnv1a first so
// insertion order does not correlate with key bytes.
func benchKey(i int) string {
	return "key:" + strconv.FormatUint(fnv1a.HashUint64(uint64(i)), 16)
}

// runBench loads the configured number of keys into a dict, driving the
// rehash engine the way a host event loop would, and prints a layout report.
func runBench(logger log.Logger) error {
	typ, err := buildType()
	if err != nil {
		return err
	}

	d, err := dict.New(cfg.Dict, typ)
	if err != nil {
		return errors.Wrap(err, "creating dict")
	}
	defer d.Release()

	level.Info(logger).Log("msg", "loading keys", "keys", cfg.Keys, "hash", cfg.HashFunction)

	start := time.Now()
	for i := 0; i < cfg.Keys; i++ {
		if err := d.Insert(benchKey(i), int64(i)); err != nil {
			return errors.Wrapf(err, "inserting key %d", i)
		}
		// Hand the rehash engine a slice of time periodically, the way a
		// serving host amortizes migrations between commands.
		if i%4096 == 0 && d.IsRehashing() {
			d.RehashFor(time.Millisecond)
		}
	}
	loadDuration := time.Since(start)

	start = time.Now()
	for d.RehashSteps(100) {
	}
	drainDuration := time.Since(start)

	start = time.Now()
	misses := 0
	for i := 0; i < cfg.Keys; i++ {
		if d.Find(benchKey(i)) == nil {
			misses++
		}
	}
	findDuration := time.Since(start)

	if misses > 0 {
		return errors.Errorf("%d keys missing after load", misses)
	}

	level.Info(logger).Log("msg", "bench complete",
		"keys", humanize.Comma(int64(cfg.Keys)),
		"load", loadDuration,
		"drain", drainDuration,
		"find", findDuration,
		"inserts_per_sec", humanize.Comma(int64(float64(cfg.Keys)/loadDuration.Seconds())),
	)

	printStats(d.Stats())
	return nil
}

func printStats(s *dict.Stats) {
	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"table", "size", "used", "non-empty", "max chain", "avg chain"})
	for _, ts := range s.Tables {
		w.Append([]string{
			strconv.Itoa(ts.Table),
			humanize.Comma(int64(ts.Size)),
			humanize.Comma(int64(ts.Used)),
			humanize.Comma(int64(ts.Buckets)),
			strconv.FormatUint(ts.MaxChainLen, 10),
			fmt.Sprintf("%.02f", ts.AvgChainLenCounted),
		})
	}
	w.Render()

	if cfg.PrintHistogram {
		fmt.Println()
		fmt.Print(s.String())
	}
}
