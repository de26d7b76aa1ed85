package perfmon

import (
	"time"

	"go.uber.org/zap"
)

// Perf samples hardware performance counters. For every configured
// statistic it owns one counter per core, counting the event across all
// processes on that core; each tick reads every counter and records the
// cross-core sum.
type Perf struct {
	cfg        *Config
	recorder   *Recorder
	logger     *zap.Logger
	counters   map[Statistic][]Counter
	registered bool
}

// NewPerf builds the perf sampler, acquiring one counter per core for
// each configured statistic. A statistic whose counters cannot all be
// opened is excluded; this degrades, it does not fail. Returns
// (nil, nil) when the sampler is disabled in configuration.
func NewPerf(cfg *Config, recorder *Recorder, logger *zap.Logger) (*Perf, error) {
	if !cfg.Perf.Enabled {
		return nil, nil
	}
	return newPerf(cfg, recorder, logger, NewPerfEventSource(), hardwareThreads()), nil
}

// newPerf is the test seam: the counter source and core count are
// injectable.
func newPerf(cfg *Config, recorder *Recorder, logger *zap.Logger, src CounterSource, cores int) *Perf {
	p := &Perf{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		counters: buildPool(src, cfg.Perf.statistics(), cores, logger),
	}
	if logger != nil {
		logger.Info("perf sampler initialized",
			zap.Int("cores", cores),
			zap.Int("statistics", len(p.counters)))
	}
	return p
}

// Name implements Sampler.
func (p *Perf) Name() string {
	return "perf"
}

// Sample reads every counter, sums per-core values per statistic, and
// records each sum under one shared timestamp. A failed read counts as
// zero for that core. Registration happens lazily before the first
// recorded values. Sample always succeeds.
func (p *Perf) Sample() error {
	now := time.Now().UnixNano()

	current := make(map[Statistic]uint64, len(p.counters))
	for stat, counters := range p.counters {
		var sum uint64
		for core, c := range counters {
			v, err := c.Read()
			if err != nil {
				if p.logger != nil {
					p.logger.Debug("could not read counter",
						zap.String("statistic", stat.String()),
						zap.Int("core", core),
						zap.Error(err))
				}
				v = 0
			}
			sum += v
		}
		current[stat] = sum
	}

	if !p.registered {
		p.Register()
	}

	for stat, value := range current {
		p.recorder.Record(stat.String(), now, value)
	}
	return nil
}

// Register implements Sampler.
func (p *Perf) Register() {
	if p.registered {
		return
	}
	for stat := range p.counters {
		p.recorder.RegisterChannel(stat.String(), maxCounterValue, counterPrecision,
			p.cfg.General.Window, defaultPercentiles)
	}
	p.registered = true
}

// Deregister implements Sampler.
func (p *Perf) Deregister() {
	if !p.registered {
		return
	}
	for stat := range p.counters {
		p.recorder.DeleteChannel(stat.String())
	}
	p.registered = false
}

// Close releases every counter in the pool. The sampler must not be
// used afterwards.
func (p *Perf) Close() error {
	closePool(p.counters)
	p.counters = nil
	return nil
}
