package perfmon

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/eryajf/promwrite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const exportNamePrefix = "perfmon_"

// Exporter ships recorder snapshots to a Prometheus remote write
// endpoint. Every series carries the instance address and a run_id
// unique to this process lifetime, so restarts are distinguishable
// downstream.
type Exporter struct {
	cfg      ExportConfig
	recorder *Recorder
	client   *promwrite.Client
	resolver *hostResolver
	runID    string
	instance string
	logger   *zap.Logger
}

// NewExporter creates an exporter for the given remote write endpoint.
func NewExporter(cfg ExportConfig, recorder *Recorder, logger *zap.Logger) *Exporter {
	instance := cfg.Instance
	if instance == "" {
		instance = localInstance()
	}

	e := &Exporter{
		cfg:      cfg,
		recorder: recorder,
		client:   promwrite.NewClient(cfg.URL),
		runID:    uuid.NewString(),
		instance: instance,
		logger:   logger,
	}
	if cfg.DNS.Enabled {
		e.resolver = newHostResolver(cfg.URL, cfg.DNS, logger)
	}
	return e
}

// Flush writes the current recorder snapshot. On failure with DNS
// refresh enabled, the endpoint host is re-resolved and the write
// retried once with a fresh client.
func (e *Exporter) Flush(ctx context.Context) error {
	points := e.recorder.Snapshot()
	if len(points) == 0 {
		return nil
	}

	req := &promwrite.WriteRequest{TimeSeries: e.timeSeries(points)}

	wctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := e.client.Write(wctx, req)
	if err == nil {
		return nil
	}

	if e.resolver != nil && e.resolver.refresh(wctx) {
		e.client = promwrite.NewClient(e.cfg.URL)
		if e.logger != nil {
			e.logger.Info("recreated remote write client after address change")
		}
		if _, retryErr := e.client.Write(wctx, req); retryErr != nil {
			return fmt.Errorf("remote write failed after refresh: %w", retryErr)
		}
		return nil
	}
	return fmt.Errorf("remote write failed: %w", err)
}

// timeSeries converts snapshot points to remote write series. The
// percentile, when present, becomes a "percentile" label on the same
// metric name.
func (e *Exporter) timeSeries(points []Point) []promwrite.TimeSeries {
	series := make([]promwrite.TimeSeries, 0, len(points))
	for _, p := range points {
		labels := make([]promwrite.Label, 0, 4+len(e.cfg.Labels))
		labels = append(labels,
			promwrite.Label{Name: "__name__", Value: exportNamePrefix + sanitizeName(p.Channel)},
			promwrite.Label{Name: "instance", Value: e.instance},
			promwrite.Label{Name: "run_id", Value: e.runID},
		)
		if p.Percentile != "" {
			labels = append(labels, promwrite.Label{Name: "percentile", Value: p.Percentile})
		}
		for k, v := range e.cfg.Labels {
			labels = append(labels, promwrite.Label{Name: k, Value: v})
		}

		series = append(series, promwrite.TimeSeries{
			Labels: labels,
			Sample: promwrite.Sample{
				Time:  p.Timestamp,
				Value: p.Value,
			},
		})
	}
	return series
}

// sanitizeName rewrites a channel label into a Prometheus metric name.
func sanitizeName(s string) string {
	return strings.NewReplacer("/", "_", "-", "_").Replace(s)
}

// localInstance picks an identifier for this host: outbound IPv4 when
// routable, hostname otherwise.
func localInstance() string {
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		addr := conn.LocalAddr().(*net.UDPAddr)
		_ = conn.Close()
		return addr.IP.String()
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}
