package dict

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"
)

// migrationLog reports rehash-engine events, throttled so a host churning
// through many small tables cannot flood its log. Resize starts are rare and
// always logged; per-migration completions share one token bucket.
type migrationLog struct {
	limiter *rate.Limiter
	logger  log.Logger
}

func newMigrationLog(logger log.Logger) *migrationLog {
	return &migrationLog{
		limiter: rate.NewLimiter(1, 1),
		logger:  logger,
	}
}

func (m *migrationLog) resizeStarted(from, to, used uint64) {
	_ = level.Debug(m.logger).Log("msg", "table resize started", "from", from, "to", to, "used", used)
}

func (m *migrationLog) rehashComplete(size, used uint64) {
	if !m.limiter.Allow() {
		return
	}
	_ = level.Debug(m.logger).Log("msg", "rehash complete", "size", size, "used", used)
}
