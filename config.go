package perfmon

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for configuration environment variables,
// e.g. PERFMON_PERF_ENABLED=true. Every underscore after the prefix
// maps to a key separator, so keys that themselves contain an
// underscore (dns.tls_servers, dns.refresh_interval) cannot be set
// from the environment; use the config file for those.
const EnvPrefix = "PERFMON_"

// Fixed registration parameters shared by all counter channels.
const (
	// maxCounterValue is the largest representable per-tick magnitude.
	maxCounterValue = 1_000_000_000_000

	// counterPrecision is the number of significant digits kept per value.
	counterPrecision = 3
)

// defaultPercentiles is the percentile set shared by every channel.
var defaultPercentiles = []float64{50, 75, 90, 99, 99.9, 99.99}

// Percentiles returns the shared percentile breakpoints.
func Percentiles() []float64 {
	return append([]float64(nil), defaultPercentiles...)
}

// Config is the root configuration for the sampling framework.
type Config struct {
	General GeneralConfig `koanf:"general"`
	Perf    PerfConfig    `koanf:"perf"`
	CPU     CPUConfig     `koanf:"cpu"`
	Export  ExportConfig  `koanf:"export"`
}

// GeneralConfig holds cadence settings shared by all samplers.
type GeneralConfig struct {
	// Interval is the sampling cadence.
	Interval time.Duration `koanf:"interval"`

	// Window is the summarization window passed to the recorder at
	// channel registration.
	Window time.Duration `koanf:"window"`
}

// PerfConfig configures the hardware performance counter sampler.
type PerfConfig struct {
	Enabled    bool     `koanf:"enabled"`
	Statistics []string `koanf:"statistics"`
}

// CPUConfig configures the procfs CPU time sampler.
type CPUConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ExportConfig configures the optional Prometheus remote write export.
type ExportConfig struct {
	// URL is the remote write endpoint. Empty disables export.
	URL      string            `koanf:"url"`
	Interval time.Duration     `koanf:"interval"`
	Instance string            `koanf:"instance"`
	Labels   map[string]string `koanf:"labels"`
	DNS      DNSConfig         `koanf:"dns"`
}

// DNSConfig configures resolver-based refresh of the remote write
// client when the endpoint host changes address.
type DNSConfig struct {
	Enabled bool `koanf:"enabled"`

	// Servers are plain DNS servers, e.g. "1.1.1.1:53".
	Servers []string `koanf:"servers"`

	// TLSServers are DNS-over-TLS servers, e.g. "1.1.1.1:853".
	TLSServers []string `koanf:"tls_servers"`

	Timeout         time.Duration `koanf:"timeout"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides are present. The perf sampler is opt-in since
// it needs elevated kernel permissions.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Interval: time.Second,
			Window:   60 * time.Second,
		},
		Perf: PerfConfig{
			Enabled: false,
			Statistics: []string{
				CPUCycles.String(),
				Instructions.String(),
			},
		},
		CPU: CPUConfig{
			Enabled: true,
		},
		Export: ExportConfig{
			Interval: 15 * time.Second,
			DNS: DNSConfig{
				Timeout:         800 * time.Millisecond,
				RefreshInterval: 5 * time.Minute,
			},
		},
	}
}

// LoadConfig loads configuration from defaults, then the given YAML file
// (if any), then PERFMON_* environment variables, and validates the
// result. Later sources override earlier ones.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// PERFMON_PERF_ENABLED -> perf.enabled
	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would misbehave at
// runtime. Unknown statistic names are rejected here rather than being
// silently dropped during pool construction.
func (c *Config) Validate() error {
	if c.General.Interval <= 0 {
		return fmt.Errorf("general.interval must be positive, got %v", c.General.Interval)
	}
	if c.General.Window <= 0 {
		return fmt.Errorf("general.window must be positive, got %v", c.General.Window)
	}
	for _, name := range c.Perf.Statistics {
		if _, err := ParseStatistic(name); err != nil {
			return fmt.Errorf("perf.statistics: %w", err)
		}
	}
	if c.Export.URL != "" && c.Export.Interval <= 0 {
		return fmt.Errorf("export.interval must be positive, got %v", c.Export.Interval)
	}
	return nil
}

// statistics returns the configured statistic set. Validate has already
// rejected unknown names, but a sampler constructed with a hand-built
// Config still skips anything unparseable.
func (p *PerfConfig) statistics() []Statistic {
	stats := make([]Statistic, 0, len(p.Statistics))
	for _, name := range p.Statistics {
		s, err := ParseStatistic(name)
		if err != nil {
			continue
		}
		stats = append(stats, s)
	}
	return stats
}
