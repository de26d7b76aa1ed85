//go:build !linux

package perfmon

import "fmt"

type unsupportedSource struct{}

// NewPerfEventSource returns a counter source for platforms without perf
// events. Every Open fails, so the perf sampler builds an empty pool.
func NewPerfEventSource() CounterSource {
	return unsupportedSource{}
}

func (unsupportedSource) Open(stat Statistic, core int) (Counter, error) {
	return nil, fmt.Errorf("perf events are not supported on this platform")
}
