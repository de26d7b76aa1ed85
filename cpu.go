package perfmon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	procStatPath  = "/proc/stat"
	jiffiesPerSec = 100
	nsPerJiffy    = uint64(time.Second) / jiffiesPerSec
)

// cpuFields are the aggregate /proc/stat columns tracked, in file order.
var cpuFields = []string{"user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal"}

// CPU samples aggregate CPU time from /proc/stat, recording cross-core
// nanosecond totals per mode. It follows the same lazy registration
// lifecycle as the perf sampler.
type CPU struct {
	cfg        *Config
	recorder   *Recorder
	logger     *zap.Logger
	statPath   string
	registered bool
}

// NewCPU builds the CPU time sampler, or nil when disabled in
// configuration.
func NewCPU(cfg *Config, recorder *Recorder, logger *zap.Logger) *CPU {
	if !cfg.CPU.Enabled {
		return nil
	}
	return &CPU{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		statPath: procStatPath,
	}
}

// Name implements Sampler.
func (c *CPU) Name() string {
	return "cpu"
}

// Sample reads the aggregate cpu line and records one value per mode
// under a shared timestamp. A failed or malformed read degrades to
// recording nothing this tick.
func (c *CPU) Sample() error {
	now := time.Now().UnixNano()

	values, err := c.readStat()
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("could not read cpu times", zap.Error(err))
		}
		return nil
	}

	if !c.registered {
		c.Register()
	}

	for mode, ns := range values {
		c.recorder.Record(c.channelLabel(mode), now, ns)
	}
	return nil
}

// Register implements Sampler.
func (c *CPU) Register() {
	if c.registered {
		return
	}
	for _, mode := range cpuFields {
		c.recorder.RegisterChannel(c.channelLabel(mode), maxCounterValue, counterPrecision,
			c.cfg.General.Window, defaultPercentiles)
	}
	c.registered = true
}

// Deregister implements Sampler.
func (c *CPU) Deregister() {
	if !c.registered {
		return
	}
	for _, mode := range cpuFields {
		c.recorder.DeleteChannel(c.channelLabel(mode))
	}
	c.registered = false
}

// Close implements Sampler; the CPU sampler holds no OS resources.
func (c *CPU) Close() error {
	return nil
}

func (c *CPU) channelLabel(mode string) string {
	return "cpu/" + mode
}

// readStat parses the aggregate cpu line into nanoseconds per mode.
func (c *CPU) readStat() (map[string]uint64, error) {
	data, err := os.ReadFile(c.statPath)
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < len(cpuFields)+1 {
			return nil, fmt.Errorf("malformed cpu line %q", line)
		}
		values := make(map[string]uint64, len(cpuFields))
		for i, mode := range cpuFields {
			jiffies, err := strconv.ParseUint(fields[i+1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse cpu %s time: %w", mode, err)
			}
			values[mode] = jiffies * nsPerJiffy
		}
		return values, nil
	}
	return nil, fmt.Errorf("no aggregate cpu line in %s", c.statPath)
}
