package perfmon

import (
	"fmt"
	"sort"
)

// Statistic identifies a countable hardware or software event. Its string
// form doubles as the recorder channel name for the event.
type Statistic string

// Hardware events
const (
	CPUCycles             Statistic = "cpu-cycles"
	Instructions          Statistic = "instructions"
	CacheReferences       Statistic = "cache-references"
	CacheMisses           Statistic = "cache-misses"
	BranchInstructions    Statistic = "branch-instructions"
	BranchMisses          Statistic = "branch-misses"
	BusCycles             Statistic = "bus-cycles"
	RefCycles             Statistic = "ref-cycles"
	StalledCyclesFrontend Statistic = "stalled-cycles-frontend"
	StalledCyclesBackend  Statistic = "stalled-cycles-backend"
)

// Software events
const (
	ContextSwitches Statistic = "context-switches"
	CPUMigrations   Statistic = "cpu-migrations"
	PageFaults      Statistic = "page-faults"
	MinorFaults     Statistic = "minor-faults"
	MajorFaults     Statistic = "major-faults"
)

// statistics is the catalog of events this package knows how to count.
var statistics = map[Statistic]string{
	CPUCycles:             "total CPU cycles",
	Instructions:          "retired instructions",
	CacheReferences:       "cache accesses, typically last level",
	CacheMisses:           "cache misses, typically last level",
	BranchInstructions:    "retired branch instructions",
	BranchMisses:          "mispredicted branch instructions",
	BusCycles:             "bus cycles",
	RefCycles:             "reference CPU cycles, unaffected by frequency scaling",
	StalledCyclesFrontend: "cycles stalled during issue",
	StalledCyclesBackend:  "cycles stalled during retirement",
	ContextSwitches:       "context switches",
	CPUMigrations:         "process migrations between CPUs",
	PageFaults:            "page faults, minor and major",
	MinorFaults:           "minor page faults",
	MajorFaults:           "major page faults, requiring disk I/O",
}

// String implements fmt.Stringer and is the channel label for the event.
func (s Statistic) String() string {
	return string(s)
}

// Description returns a human-readable summary of what the event counts.
func (s Statistic) Description() string {
	return statistics[s]
}

// ParseStatistic maps a configured event name to its Statistic. Unknown
// names are a configuration error.
func ParseStatistic(name string) (Statistic, error) {
	s := Statistic(name)
	if _, ok := statistics[s]; !ok {
		return "", fmt.Errorf("unknown statistic %q", name)
	}
	return s, nil
}

// AllStatistics returns every known statistic in stable order.
func AllStatistics() []Statistic {
	all := make([]Statistic, 0, len(statistics))
	for s := range statistics {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}
