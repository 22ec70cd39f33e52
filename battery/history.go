package battery

import (
	"time"

	"github.com/fdm225/mahRe2/sensors"
)

// Sample is one tick's worth of raw telemetry. Any field may be absent.
type Sample struct {
	Time        time.Time
	Amps        sensors.Reading
	Volts       sensors.Reading
	ThrottlePct sensors.Reading
}

// History aggregates samples for one session: per-cell minimum voltages,
// maximum current and power, and the latest voltage reading. A session runs
// from one reset-switch event to the next; the monitor discards the whole
// History and builds a fresh one on reset.
type History struct {
	startedAt    time.Time
	cellCount    int
	minCellVolts []float64
	maxAmps      float64
	maxAmpsSet   bool
	maxWatts     float64
	maxWattsSet  bool
	samples      int
	latestVolts  sensors.Reading

	writing    bool
	flushDone  chan error
	onFlushed  func(error)
}

func NewHistory(now time.Time) *History {
	return &History{
		startedAt: now,
		flushDone: make(chan error, 1),
	}
}

// Ingest folds one sample into the running extrema. Minimum cell voltages
// only ever decrease per index; maxima are set directly on first
// observation so a session never carries a spurious zero baseline.
func (h *History) Ingest(s Sample) {
	h.samples++

	if !s.Volts.IsAbsent() {
		h.latestVolts = s.Volts
		h.ingestVolts(s.Volts)
	}

	if !s.Amps.IsAbsent() {
		amps := s.Amps.Value()
		if !h.maxAmpsSet || amps > h.maxAmps {
			h.maxAmps = amps
			h.maxAmpsSet = true
		}
		if volts := h.TotalVolts(); volts > 0 {
			watts := amps * volts
			if !h.maxWattsSet || watts > h.maxWatts {
				h.maxWatts = watts
				h.maxWattsSet = true
			}
		}
	}
}

func (h *History) ingestVolts(r sensors.Reading) {
	// A bare pack voltage counts as a single logical cell.
	cells := r.CellVolts()
	if r.Kind() == sensors.Scalar {
		cells = []float64{r.Value()}
	}

	h.cellCount = len(cells)
	for len(h.minCellVolts) < len(cells) {
		h.minCellVolts = append(h.minCellVolts, cells[len(h.minCellVolts)])
	}
	for i, v := range cells {
		if v < h.minCellVolts[i] {
			h.minCellVolts[i] = v
		}
	}
}

// TotalVolts returns the sum of the latest cell voltages, the latest scalar
// pack voltage, or 0 when no voltage has been seen.
func (h *History) TotalVolts() float64 {
	return h.latestVolts.Total()
}

// LatestVolts exposes the most recent voltage reading for the alert layer.
func (h *History) LatestVolts() sensors.Reading {
	return h.latestVolts
}

// MinCellVolts returns a copy of the per-index minimums.
func (h *History) MinCellVolts() []float64 {
	out := make([]float64, len(h.minCellVolts))
	copy(out, h.minCellVolts)
	return out
}

func (h *History) MaxAmps() (float64, bool)  { return h.maxAmps, h.maxAmpsSet }
func (h *History) MaxWatts() (float64, bool) { return h.maxWatts, h.maxWattsSet }

func (h *History) CellCount() int { return h.cellCount }
func (h *History) Samples() int   { return h.samples }

func (h *History) Duration(now time.Time) time.Duration {
	return now.Sub(h.startedAt)
}

// Writing reports whether a flush is still outstanding. The render layer
// must show this state instead of stale battery data.
func (h *History) Writing() bool { return h.writing }

// Write serializes rec to the sink off the tick loop. It refuses to start
// while a previous flush is outstanding; completion is delivered through
// Tick on a later tick. onComplete may be nil.
func (h *History) Write(rec SessionRecord, sink RecordSink, onComplete func(error)) bool {
	if h.writing || sink == nil {
		return false
	}
	h.writing = true
	h.onFlushed = onComplete
	go func() {
		h.flushDone <- sink.Append(rec)
	}()
	return true
}

// Tick ingests the current sensor values and completes any finished flush.
func (h *History) Tick(src sensors.Source, voltageSensor, currentSensor, throttleChannel string, now time.Time) {
	select {
	case err := <-h.flushDone:
		h.writing = false
		if h.onFlushed != nil {
			h.onFlushed(err)
			h.onFlushed = nil
		}
	default:
	}

	h.Ingest(Sample{
		Time:        now,
		Amps:        src.Read(currentSensor),
		Volts:       src.Read(voltageSensor),
		ThrottlePct: src.Read(throttleChannel),
	})
}
