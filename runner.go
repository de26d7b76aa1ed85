package perfmon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner owns the sampler set and drives it on the configured cadence.
// All samplers are invoked sequentially from a single goroutine, so one
// tick never overlaps another. An optional exporter ships recorder
// snapshots on its own interval.
type Runner struct {
	cfg      *Config
	recorder *Recorder
	exporter *Exporter
	samplers []Sampler
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRunner constructs the recorder and every enabled sampler. Disabled
// samplers are simply absent, which is a normal outcome rather than an
// error.
func NewRunner(cfg *Config, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:      cfg,
		recorder: NewRecorder(logger),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	perf, err := NewPerf(cfg, r.recorder, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	if perf != nil {
		r.samplers = append(r.samplers, perf)
	}

	if cpu := NewCPU(cfg, r.recorder, logger); cpu != nil {
		r.samplers = append(r.samplers, cpu)
	}

	if cfg.Export.URL != "" {
		r.exporter = NewExporter(cfg.Export, r.recorder, logger)
	}

	return r, nil
}

// Recorder returns the runner's recorder, for direct queries.
func (r *Runner) Recorder() *Recorder {
	return r.recorder
}

// Samplers returns the names of the enabled samplers.
func (r *Runner) Samplers() []string {
	names := make([]string, 0, len(r.samplers))
	for _, s := range r.samplers {
		names = append(names, s.Name())
	}
	return names
}

// Start launches the sampling loop, and the export loop when remote
// write is configured.
func (r *Runner) Start() error {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.General.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sampleAll()
			case <-r.ctx.Done():
				return
			}
		}
	}()

	if r.exporter != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(r.cfg.Export.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := r.exporter.Flush(r.ctx); err != nil {
						if r.logger != nil {
							r.logger.Error("failed to export metrics", zap.Error(err))
						}
					}
				case <-r.ctx.Done():
					return
				}
			}
		}()
	}

	if r.logger != nil {
		r.logger.Info("runner started",
			zap.Strings("samplers", r.Samplers()),
			zap.Duration("interval", r.cfg.General.Interval))
	}
	return nil
}

// sampleAll invokes every sampler once, in order.
func (r *Runner) sampleAll() {
	for _, s := range r.samplers {
		if err := s.Sample(); err != nil {
			if r.logger != nil {
				r.logger.Error("sampler failed", zap.String("sampler", s.Name()), zap.Error(err))
			}
		}
	}
}

// Stop halts the loops, deregisters every sampler, and releases their
// resources.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()

	for _, s := range r.samplers {
		s.Deregister()
		if err := s.Close(); err != nil && r.logger != nil {
			r.logger.Warn("failed to close sampler", zap.String("sampler", s.Name()), zap.Error(err))
		}
	}

	if r.logger != nil {
		r.logger.Info("runner stopped")
	}
}
