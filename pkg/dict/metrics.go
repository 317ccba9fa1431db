package dict

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

var (
	liveDicts = atomic.NewInt64(0)

	metricGrows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memdex",
		Name:      "dict_grows_total",
		Help:      "Total number of table growths started.",
	})

	metricShrinks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memdex",
		Name:      "dict_shrinks_total",
		Help:      "Total number of table shrinks started.",
	})

	metricMigrations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memdex",
		Name:      "dict_rehash_migrated_entries_total",
		Help:      "Total number of entries moved between tables by the rehash engine.",
	})

	metricLiveDicts = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "memdex",
		Name:      "dicts",
		Help:      "Number of live dicts.",
	}, func() float64 {
		return float64(liveDicts.Load())
	})
)
