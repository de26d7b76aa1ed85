package perfmon

import (
	"os"
	"strconv"
	"strings"
)

// Counter is one live OS performance counter bound to a single CPU core,
// counting one event across all processes on that core. Counters are
// exclusively owned by the sampler that opened them.
type Counter interface {
	// Read returns the accumulated event count. The count is
	// monotonically non-decreasing for the lifetime of the counter.
	Read() (uint64, error)
	Close() error
}

// CounterSource opens counters for (event, core) pairs. The production
// source wraps the kernel perf_event_open interface; tests substitute
// their own.
type CounterSource interface {
	Open(stat Statistic, core int) (Counter, error)
}

const (
	cpuPresentPath = "/sys/devices/system/cpu/present"
	cpuinfoPath    = "/proc/cpuinfo"
)

// hardwareThreads reports the number of hardware threads on the host,
// or 1 if it cannot be determined.
func hardwareThreads() int {
	return threadsFrom(cpuPresentPath, cpuinfoPath)
}

func threadsFrom(presentPath, infoPath string) int {
	if data, err := os.ReadFile(presentPath); err == nil {
		if n, err := parsePresentRange(strings.TrimSpace(string(data))); err == nil {
			return n
		}
	}

	// Fall back to counting processor entries in /proc/cpuinfo
	if data, err := os.ReadFile(infoPath); err == nil {
		count := 0
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "processor") {
				count++
			}
		}
		if count > 0 {
			return count
		}
	}

	return 1
}

// parsePresentRange parses the kernel cpu present mask ("0" or "0-7",
// possibly comma-separated ranges) into a thread count.
func parsePresentRange(s string) (int, error) {
	max := -1
	for _, part := range strings.Split(s, ",") {
		bounds := strings.SplitN(part, "-", 2)
		upper, err := strconv.Atoi(strings.TrimSpace(bounds[len(bounds)-1]))
		if err != nil {
			return 0, err
		}
		if upper > max {
			max = upper
		}
	}
	return max + 1, nil
}
