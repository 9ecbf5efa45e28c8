package orchestrator

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/http-ingest-connector/internal/logging"
)

// sweeper is implemented by any collaborator that can proactively drop
// state that has merely gone stale rather than grown unbounded.
// SlidingWindow satisfies it directly and cacheSweeper adapts Cache;
// collaborators without anything to
// sweep (token bucket, fixed window) simply aren't registered.
type sweeper interface {
	Sweep(now time.Time)
}

// cacheSweeper adapts *cache.Cache's Sweep (which returns a count) to
// the sweeper interface the housekeeper schedules uniformly.
type cacheSweeper struct {
	endpointID string
	sweep      func(time.Time) int
	logger     *logging.Logger
}

func (c cacheSweeper) Sweep(now time.Time) {
	if n := c.sweep(now); n > 0 && c.logger != nil {
		c.logger.WithField("endpoint_id", c.endpointID).WithField("count", n).Debug("swept expired cache entries")
	}
}

// housekeeper runs background maintenance that has no bearing on
// ingestion correctness: expired cache entries and rate-limiter bucket
// bookkeeping that would otherwise only get cleaned up lazily on the
// next request to a now-quiet endpoint. It is deliberately separate
// from the Scheduler, which drives poll() and must stay synchronous and
// test-deterministic.
type housekeeper struct {
	cron     *cron.Cron
	sweepers []sweeper
	logger   *logging.Logger
}

// newHousekeeper builds a cron-driven housekeeper. Call Start to begin
// running it and Stop to tear it down; an Engine with no sweepers
// registered starts an empty cron and Stop is still safe to call.
func newHousekeeper(logger *logging.Logger) *housekeeper {
	return &housekeeper{
		cron:   cron.New(),
		logger: logger,
	}
}

// register adds s to the set of collaborators swept on every tick.
func (h *housekeeper) register(s sweeper) {
	h.sweepers = append(h.sweepers, s)
}

// Start schedules the sweep to run every interval via @every, the
// duration-spec form of robfig/cron used for non-calendar periodic
// jobs, and starts the cron scheduler's own goroutine.
func (h *housekeeper) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	_, err := h.cron.AddFunc("@every "+interval.String(), h.sweepAll)
	if err != nil {
		return err
	}
	h.cron.Start()
	return nil
}

func (h *housekeeper) sweepAll() {
	now := time.Now()
	for _, s := range h.sweepers {
		s.Sweep(now)
	}
}

// Stop blocks until any in-flight sweep finishes and halts the cron.
func (h *housekeeper) Stop() {
	ctx := h.cron.Stop()
	<-ctx.Done()
}
