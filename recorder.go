package perfmon

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Point is a single exported datapoint from a recorder snapshot.
// Percentile is empty for the raw channel total.
type Point struct {
	Channel    string
	Percentile string
	Value      float64
	Timestamp  time.Time
}

// Recorder is the time-series sink shared by all samplers. Each channel
// tracks a monotonic counter total plus a windowed distribution of
// per-tick increments, from which percentiles are summarized. The
// recorder is safe for use from multiple goroutines; within this
// package only the sampling goroutine mutates it.
type Recorder struct {
	channels map[string]*channel
	logger   *zap.Logger
	mutex    sync.RWMutex
}

// channel holds the registration parameters and windowed state for one
// statistic.
type channel struct {
	max         uint64
	precision   int
	window      time.Duration
	percentiles []float64

	total       uint64
	previous    uint64
	hasPrevious bool
	lastTime    int64
	windowStart int64

	// increments per tick, keyed by value truncated to precision
	// significant digits
	counts map[uint64]uint64
}

// NewRecorder creates an empty recorder.
func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{
		channels: make(map[string]*channel),
		logger:   logger,
	}
}

// RegisterChannel creates a channel for the given label. Registering an
// existing label is a no-op; the original parameters are kept.
func (r *Recorder) RegisterChannel(label string, max uint64, precision int, window time.Duration, percentiles []float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.channels[label]; exists {
		return
	}
	r.channels[label] = &channel{
		max:         max,
		precision:   precision,
		window:      window,
		percentiles: append([]float64(nil), percentiles...),
		counts:      make(map[uint64]uint64),
	}

	if r.logger != nil {
		r.logger.Debug("registered channel", zap.String("channel", label))
	}
}

// Record appends a counter reading to a channel. The reading is the
// raw monotonic total; the channel derives per-tick increments from
// consecutive readings, clamping each increment at the channel maximum.
// Recording to an unknown label is dropped, not an error.
func (r *Recorder) Record(label string, ts int64, value uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch, exists := r.channels[label]
	if !exists {
		if r.logger != nil {
			r.logger.Debug("dropped value for unknown channel", zap.String("channel", label))
		}
		return
	}

	if ch.window > 0 && ch.windowStart > 0 && ts-ch.windowStart >= ch.window.Nanoseconds() {
		ch.counts = make(map[uint64]uint64)
		ch.windowStart = ts
	}
	if ch.windowStart == 0 {
		ch.windowStart = ts
	}

	if ch.hasPrevious && value >= ch.previous {
		delta := value - ch.previous
		if delta > ch.max {
			delta = ch.max
		}
		ch.counts[truncateSig(delta, ch.precision)]++
	}
	ch.previous = value
	ch.hasPrevious = true
	ch.total = value
	ch.lastTime = ts
}

// DeleteChannel removes a channel and its state.
func (r *Recorder) DeleteChannel(label string) {
	r.mutex.Lock()
	delete(r.channels, label)
	r.mutex.Unlock()
}

// HasChannel reports whether a channel is registered.
func (r *Recorder) HasChannel(label string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, exists := r.channels[label]
	return exists
}

// Total returns the latest recorded counter value for a channel.
func (r *Recorder) Total(label string) (uint64, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ch, exists := r.channels[label]
	if !exists || ch.lastTime == 0 {
		return 0, false
	}
	return ch.total, true
}

// Percentile returns the given percentile of per-tick increments in the
// current window.
func (r *Recorder) Percentile(label string, p float64) (uint64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ch, exists := r.channels[label]
	if !exists {
		return 0, fmt.Errorf("no channel %q", label)
	}
	return ch.percentile(p)
}

// Snapshot returns the exportable state of every channel with data: the
// latest total plus one point per configured percentile.
func (r *Recorder) Snapshot() []Point {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var points []Point
	for label, ch := range r.channels {
		if ch.lastTime == 0 {
			continue
		}
		ts := time.Unix(0, ch.lastTime)
		points = append(points, Point{
			Channel:   label,
			Value:     float64(ch.total),
			Timestamp: ts,
		})
		for _, p := range ch.percentiles {
			v, err := ch.percentile(p)
			if err != nil {
				continue
			}
			points = append(points, Point{
				Channel:    label,
				Percentile: percentileLabel(p),
				Value:      float64(v),
				Timestamp:  ts,
			})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Channel != points[j].Channel {
			return points[i].Channel < points[j].Channel
		}
		return points[i].Percentile < points[j].Percentile
	})
	return points
}

func (ch *channel) percentile(p float64) (uint64, error) {
	var n uint64
	for _, c := range ch.counts {
		n += c
	}
	if n == 0 {
		return 0, fmt.Errorf("channel has no samples in window")
	}

	keys := make([]uint64, 0, len(ch.counts))
	for k := range ch.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rank := uint64(float64(n) * p / 100.0)
	if rank >= n {
		rank = n - 1
	}
	var seen uint64
	for _, k := range keys {
		seen += ch.counts[k]
		if seen > rank {
			return k, nil
		}
	}
	return keys[len(keys)-1], nil
}

// truncateSig truncates v to the given number of significant decimal
// digits, bucketing nearby values together.
func truncateSig(v uint64, digits int) uint64 {
	if v == 0 || digits <= 0 {
		return v
	}
	mag := 0
	for t := v; t >= 10; t /= 10 {
		mag++
	}
	if mag < digits {
		return v
	}
	scale := uint64(1)
	for i := 0; i < mag-digits+1; i++ {
		scale *= 10
	}
	return v / scale * scale
}

// percentileLabel formats a percentile for use as a series label.
func percentileLabel(p float64) string {
	if p == float64(int64(p)) {
		return fmt.Sprintf("p%d", int64(p))
	}
	return "p" + strings.ReplaceAll(fmt.Sprintf("%g", p), ".", "")
}
