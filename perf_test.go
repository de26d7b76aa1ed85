package perfmon

import (
	"errors"
	"testing"
	"time"
)

func perfTestConfig(stats ...string) *Config {
	cfg := DefaultConfig()
	cfg.Perf.Enabled = true
	cfg.Perf.Statistics = stats
	return cfg
}

func TestNewPerfDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Perf.Enabled = false

	p, err := NewPerf(cfg, NewRecorder(nil), nil)
	if err != nil {
		t.Fatalf("NewPerf: %v", err)
	}
	if p != nil {
		t.Error("disabled config should yield no sampler")
	}
}

func TestSampleSumsAcrossCores(t *testing.T) {
	src := &fakeSource{reads: map[Statistic][][]fakeRead{
		CPUCycles: {
			{{value: 100}, {value: 200}},
			{{value: 150}, {value: 300}},
		},
	}}
	rec := NewRecorder(nil)
	p := newPerf(perfTestConfig("cpu-cycles"), rec, nil, src, 2)

	if err := p.Sample(); err != nil {
		t.Fatalf("Sample: %v", err)
	}

	if !rec.HasChannel("cpu-cycles") {
		t.Fatal("first sample should have registered the channel")
	}
	total, ok := rec.Total("cpu-cycles")
	if !ok {
		t.Fatal("no value recorded")
	}
	if total != 250 {
		t.Errorf("recorded %d, want 250", total)
	}
}

func TestSampleDegradedReadCountsAsZero(t *testing.T) {
	src := &fakeSource{reads: map[Statistic][][]fakeRead{
		CPUCycles: {
			{{value: 100}, {err: errors.New("counter wrapped")}},
			{{value: 150}, {value: 300}},
		},
	}}
	rec := NewRecorder(nil)
	p := newPerf(perfTestConfig("cpu-cycles"), rec, nil, src, 2)

	if err := p.Sample(); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if err := p.Sample(); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	total, _ := rec.Total("cpu-cycles")
	if total != 300 {
		t.Errorf("recorded %d, want 300 (failed core degrades to zero)", total)
	}
}

func TestSampleSharedTimestamp(t *testing.T) {
	src := &fakeSource{reads: map[Statistic][][]fakeRead{
		CPUCycles:    {{{value: 1}}},
		Instructions: {{{value: 2}}},
	}}
	rec := NewRecorder(nil)
	p := newPerf(perfTestConfig("cpu-cycles", "instructions"), rec, nil, src, 1)

	if err := p.Sample(); err != nil {
		t.Fatalf("Sample: %v", err)
	}

	points := rec.Snapshot()
	if len(points) != 2 {
		t.Fatalf("snapshot has %d points, want 2", len(points))
	}
	if !points[0].Timestamp.Equal(points[1].Timestamp) {
		t.Errorf("timestamps differ within one tick: %v vs %v",
			points[0].Timestamp, points[1].Timestamp)
	}
}

func TestSampleRegistersOnce(t *testing.T) {
	src := &fakeSource{reads: map[Statistic][][]fakeRead{
		CPUCycles: {{{value: 1}, {value: 2}, {value: 3}}},
	}}
	rec := NewRecorder(nil)
	p := newPerf(perfTestConfig("cpu-cycles"), rec, nil, src, 1)

	if err := p.Sample(); err != nil {
		t.Fatalf("Sample: %v", err)
	}

	// While registered, further samples must not re-create channels.
	rec.DeleteChannel("cpu-cycles")
	if err := p.Sample(); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if rec.HasChannel("cpu-cycles") {
		t.Error("sampler re-registered while already in the registered state")
	}
}

func TestDeregisterAndResample(t *testing.T) {
	src := &fakeSource{reads: map[Statistic][][]fakeRead{
		CPUCycles: {{{value: 100}, {value: 250}}},
	}}
	rec := NewRecorder(nil)
	p := newPerf(perfTestConfig("cpu-cycles"), rec, nil, src, 1)

	if err := p.Sample(); err != nil {
		t.Fatalf("tick 1: %v", err)
	}

	p.Deregister()
	if rec.HasChannel("cpu-cycles") {
		t.Fatal("deregister should delete the channel")
	}

	if err := p.Sample(); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if !rec.HasChannel("cpu-cycles") {
		t.Fatal("sampling after deregister should re-register")
	}
	total, _ := rec.Total("cpu-cycles")
	if total != 250 {
		t.Errorf("recorded %d, want 250", total)
	}
}

func TestDeregisterIdempotent(t *testing.T) {
	rec := NewRecorder(nil)
	p := newPerf(perfTestConfig("cpu-cycles"), rec, nil, &fakeSource{}, 1)

	p.Deregister() // never registered: no-op

	// A channel that happens to share a label must survive a redundant
	// deregister, proving no deletion calls are made.
	rec.RegisterChannel("cpu-cycles", maxCounterValue, counterPrecision, time.Minute, defaultPercentiles)
	p.Deregister()
	if !rec.HasChannel("cpu-cycles") {
		t.Error("deregister while unregistered must not delete channels")
	}
}

func TestRegisterIdempotent(t *testing.T) {
	rec := NewRecorder(nil)
	p := newPerf(perfTestConfig("cpu-cycles"), rec, nil, &fakeSource{}, 1)

	p.Register()
	p.Register()
	if !p.registered {
		t.Error("sampler should be registered")
	}
}

func TestPerfName(t *testing.T) {
	p := newPerf(perfTestConfig(), NewRecorder(nil), nil, &fakeSource{}, 1)
	if p.Name() != "perf" {
		t.Errorf("Name() = %q, want %q", p.Name(), "perf")
	}
}

func TestPerfCloseReleasesCounters(t *testing.T) {
	src := &fakeSource{}
	p := newPerf(perfTestConfig("cpu-cycles", "instructions"), NewRecorder(nil), nil, src, 2)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for stat, handles := range src.opened {
		for _, c := range handles {
			if !c.closed {
				t.Errorf("counter for %s left open after Close", stat)
			}
		}
	}
}
