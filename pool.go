package perfmon

import "go.uber.org/zap"

// buildPool opens one counter per core for every requested statistic.
// A statistic is retained only if a counter could be opened for every
// core; on the first per-core failure the partial set is closed and the
// statistic is excluded. Failures are diagnostic, never fatal, so the
// build always succeeds, possibly with an empty pool.
func buildPool(src CounterSource, stats []Statistic, cores int, logger *zap.Logger) map[Statistic][]Counter {
	pool := make(map[Statistic][]Counter, len(stats))

	for _, stat := range stats {
		handles := make([]Counter, 0, cores)
		for core := 0; core < cores; core++ {
			c, err := src.Open(stat, core)
			if err != nil {
				if logger != nil {
					logger.Debug("failed to open counter",
						zap.String("statistic", stat.String()),
						zap.Int("core", core),
						zap.Error(err))
				}
				break
			}
			handles = append(handles, c)
		}

		if len(handles) != cores {
			for _, c := range handles {
				_ = c.Close()
			}
			continue
		}
		pool[stat] = handles
	}

	return pool
}

// closePool releases every counter in the pool.
func closePool(pool map[Statistic][]Counter) {
	for _, handles := range pool {
		for _, c := range handles {
			_ = c.Close()
		}
	}
}
