//go:build linux

package perfmon

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// perfEventSource opens counters through perf_event_open(2). Each counter
// is pinned to one CPU and observes all processes on it, which requires
// CAP_PERFMON or a permissive kernel.perf_event_paranoid setting.
type perfEventSource struct{}

// NewPerfEventSource returns the production counter source backed by the
// kernel perf events interface.
func NewPerfEventSource() CounterSource {
	return perfEventSource{}
}

func (perfEventSource) Open(stat Statistic, core int) (Counter, error) {
	typ, config, err := eventAttr(stat)
	if err != nil {
		return nil, err
	}

	attr := unix.PerfEventAttr{
		Type:   typ,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config: config,
	}

	// pid=-1 with a concrete cpu counts every process on that core.
	fd, err := unix.PerfEventOpen(&attr, -1, core, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("perf_event_open %s on core %d: %w", stat, core, err)
	}

	return &perfCounter{fd: fd}, nil
}

// perfCounter is a live perf event file descriptor.
type perfCounter struct {
	fd int
}

func (c *perfCounter) Read() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(c.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("read perf counter: %w", err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short perf counter read: %d bytes", n)
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

func (c *perfCounter) Close() error {
	return unix.Close(c.fd)
}

// eventAttr maps a statistic to its perf event type and config.
func eventAttr(stat Statistic) (uint32, uint64, error) {
	switch stat {
	case CPUCycles:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES, nil
	case Instructions:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS, nil
	case CacheReferences:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_REFERENCES, nil
	case CacheMisses:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES, nil
	case BranchInstructions:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS, nil
	case BranchMisses:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES, nil
	case BusCycles:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BUS_CYCLES, nil
	case RefCycles:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_REF_CPU_CYCLES, nil
	case StalledCyclesFrontend:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND, nil
	case StalledCyclesBackend:
		return unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND, nil
	case ContextSwitches:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CONTEXT_SWITCHES, nil
	case CPUMigrations:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_CPU_MIGRATIONS, nil
	case PageFaults:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS, nil
	case MinorFaults:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MIN, nil
	case MajorFaults:
		return unix.PERF_TYPE_SOFTWARE, unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ, nil
	default:
		return 0, 0, fmt.Errorf("no perf event mapping for statistic %q", stat)
	}
}
