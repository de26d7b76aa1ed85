// Package perfmon provides a periodic hardware-performance-counter
// sampling framework with Prometheus Remote Write support.
//
// Design goals:
//   - Per-core perf event counters aggregated into cross-core totals
//   - Degraded reads absorbed as zeros, never aborting a sampling tick
//   - A single sampling goroutine, so ticks never overlap
//   - Windowed percentile summaries per tracked statistic
//
// Basic usage:
//
//	cfg, err := perfmon.LoadConfig("perfmon.yaml")
//	if err != nil {
//	  log.Fatal(err)
//	}
//
//	runner, err := perfmon.NewRunner(cfg, logger)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	runner.Start()
//	defer runner.Stop()
package perfmon
