package perfmon

import (
	"testing"
	"time"
)

func registerTestChannel(r *Recorder, label string) {
	r.RegisterChannel(label, maxCounterValue, counterPrecision, time.Minute, defaultPercentiles)
}

func TestRegisterChannelIdempotent(t *testing.T) {
	r := NewRecorder(nil)
	r.RegisterChannel("cycles", maxCounterValue, 3, time.Minute, defaultPercentiles)
	r.RegisterChannel("cycles", 42, 1, time.Second, nil)

	ch := r.channels["cycles"]
	if ch.max != maxCounterValue || ch.precision != 3 {
		t.Error("re-registration must keep the original parameters")
	}
}

func TestRecordUnknownChannelIsDropped(t *testing.T) {
	r := NewRecorder(nil)
	r.Record("nope", time.Now().UnixNano(), 1)

	if _, ok := r.Total("nope"); ok {
		t.Error("recording to an unknown channel should not create it")
	}
}

func TestRecordTracksLatestTotal(t *testing.T) {
	r := NewRecorder(nil)
	registerTestChannel(r, "cycles")

	ts := time.Now().UnixNano()
	r.Record("cycles", ts, 100)
	r.Record("cycles", ts+1e9, 350)

	total, ok := r.Total("cycles")
	if !ok {
		t.Fatal("no value recorded")
	}
	if total != 350 {
		t.Errorf("Total = %d, want 350", total)
	}
}

func TestRecordClampsIncrementAtMax(t *testing.T) {
	r := NewRecorder(nil)
	r.RegisterChannel("cycles", 1000, 3, time.Minute, []float64{50})

	ts := time.Now().UnixNano()
	r.Record("cycles", ts, 0)
	r.Record("cycles", ts+1e9, 5000)

	// The raw total is untouched; the increment saturates at max.
	total, _ := r.Total("cycles")
	if total != 5000 {
		t.Errorf("Total = %d, want raw 5000", total)
	}
	p50, err := r.Percentile("cycles", 50)
	if err != nil {
		t.Fatalf("Percentile: %v", err)
	}
	if p50 != 1000 {
		t.Errorf("p50 = %d, want increment clamped at 1000", p50)
	}
}

func TestPercentileOfIncrements(t *testing.T) {
	r := NewRecorder(nil)
	registerTestChannel(r, "cycles")

	// Increments: 100, 100, 200.
	ts := time.Now().UnixNano()
	for i, v := range []uint64{0, 100, 200, 400} {
		r.Record("cycles", ts+int64(i)*1e9, v)
	}

	p50, err := r.Percentile("cycles", 50)
	if err != nil {
		t.Fatalf("Percentile: %v", err)
	}
	if p50 != 100 {
		t.Errorf("p50 = %d, want 100", p50)
	}

	p99, err := r.Percentile("cycles", 99)
	if err != nil {
		t.Fatalf("Percentile: %v", err)
	}
	if p99 != 200 {
		t.Errorf("p99 = %d, want 200", p99)
	}
}

func TestPercentileErrors(t *testing.T) {
	r := NewRecorder(nil)
	if _, err := r.Percentile("missing", 50); err == nil {
		t.Error("want error for unknown channel")
	}

	registerTestChannel(r, "cycles")
	if _, err := r.Percentile("cycles", 50); err == nil {
		t.Error("want error for channel without samples")
	}
}

func TestWindowReset(t *testing.T) {
	r := NewRecorder(nil)
	r.RegisterChannel("cycles", maxCounterValue, 3, time.Millisecond, defaultPercentiles)

	base := time.Now().UnixNano()
	r.Record("cycles", base, 0)
	r.Record("cycles", base+int64(time.Microsecond), 100)

	// Past the window: prior increments are discarded, the counter
	// baseline carries over.
	r.Record("cycles", base+int64(2*time.Millisecond), 150)

	p50, err := r.Percentile("cycles", 50)
	if err != nil {
		t.Fatalf("Percentile: %v", err)
	}
	if p50 != 50 {
		t.Errorf("p50 = %d, want 50 (only the post-reset increment)", p50)
	}
}

func TestDeleteChannel(t *testing.T) {
	r := NewRecorder(nil)
	registerTestChannel(r, "cycles")
	r.DeleteChannel("cycles")

	if r.HasChannel("cycles") {
		t.Error("channel should be gone")
	}
	// Deleting again is harmless.
	r.DeleteChannel("cycles")
}

func TestSnapshotShape(t *testing.T) {
	r := NewRecorder(nil)
	registerTestChannel(r, "cycles")
	registerTestChannel(r, "idle") // never recorded: excluded

	ts := time.Now().UnixNano()
	r.Record("cycles", ts, 100)
	r.Record("cycles", ts+1e9, 300)

	points := r.Snapshot()

	// One total plus one point per percentile.
	want := 1 + len(defaultPercentiles)
	if len(points) != want {
		t.Fatalf("snapshot has %d points, want %d", len(points), want)
	}
	if points[0].Percentile != "" || points[0].Value != 300 {
		t.Errorf("first point = %+v, want the raw total 300", points[0])
	}
	for _, p := range points {
		if p.Channel != "cycles" {
			t.Errorf("unexpected channel %q in snapshot", p.Channel)
		}
		if !p.Timestamp.Equal(time.Unix(0, ts+1e9)) {
			t.Errorf("point timestamp = %v, want last record time", p.Timestamp)
		}
	}
}

func TestTruncateSig(t *testing.T) {
	tests := []struct {
		v      uint64
		digits int
		want   uint64
	}{
		{0, 3, 0},
		{999, 3, 999},
		{1001, 3, 1000},
		{123456, 3, 123000},
		{987654321, 3, 987000000},
		{123456, 0, 123456},
	}
	for _, tt := range tests {
		if got := truncateSig(tt.v, tt.digits); got != tt.want {
			t.Errorf("truncateSig(%d, %d) = %d, want %d", tt.v, tt.digits, got, tt.want)
		}
	}
}

func TestPercentileLabel(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{50, "p50"},
		{99, "p99"},
		{99.9, "p999"},
		{99.99, "p9999"},
	}
	for _, tt := range tests {
		if got := percentileLabel(tt.p); got != tt.want {
			t.Errorf("percentileLabel(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}
