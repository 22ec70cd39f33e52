package battery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fdm225/mahRe2/sensors"
)

func ts() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func TestMinCellVoltsPerIndex(t *testing.T) {
	h := NewHistory(ts())

	h.Ingest(Sample{Volts: sensors.NewCells([]float64{3.9, 3.8, 4.0})})
	h.Ingest(Sample{Volts: sensors.NewCells([]float64{3.85, 3.95, 3.99})})

	assert.Equal(t, []float64{3.85, 3.8, 3.99}, h.MinCellVolts())
	assert.Equal(t, 3, h.CellCount())
}

func TestMinCellVoltsNeverIncrease(t *testing.T) {
	h := NewHistory(ts())

	h.Ingest(Sample{Volts: sensors.NewCells([]float64{3.7, 3.7})})
	h.Ingest(Sample{Volts: sensors.NewCells([]float64{4.1, 4.1})})

	assert.Equal(t, []float64{3.7, 3.7}, h.MinCellVolts())
}

func TestScalarVoltageIsOneLogicalCell(t *testing.T) {
	h := NewHistory(ts())

	h.Ingest(Sample{Volts: sensors.NewScalar(16.8)})
	h.Ingest(Sample{Volts: sensors.NewScalar(15.9)})

	assert.Equal(t, 1, h.CellCount())
	assert.Equal(t, []float64{15.9}, h.MinCellVolts())
	assert.Equal(t, 15.9, h.TotalVolts())
}

func TestMaxAmpsAndWattsFirstObservationSetsDirectly(t *testing.T) {
	h := NewHistory(ts())

	_, set := h.MaxAmps()
	assert.False(t, set)

	h.Ingest(Sample{
		Volts: sensors.NewCells([]float64{4.0, 4.0}),
		Amps:  sensors.NewScalar(2.5),
	})

	amps, set := h.MaxAmps()
	assert.True(t, set)
	assert.Equal(t, 2.5, amps)

	watts, set := h.MaxWatts()
	assert.True(t, set)
	assert.InDelta(t, 20.0, watts, 0.001)

	// Lower draw later must not move the maxima.
	h.Ingest(Sample{
		Volts: sensors.NewCells([]float64{3.9, 3.9}),
		Amps:  sensors.NewScalar(1.0),
	})
	amps, _ = h.MaxAmps()
	assert.Equal(t, 2.5, amps)
}

func TestAbsentSensorsAreSkipped(t *testing.T) {
	h := NewHistory(ts())

	h.Ingest(Sample{})
	assert.Equal(t, 0.0, h.TotalVolts())
	assert.Empty(t, h.MinCellVolts())
	_, set := h.MaxAmps()
	assert.False(t, set)
	assert.Equal(t, 1, h.Samples())
}

type sinkFunc func(SessionRecord) error

func (f sinkFunc) Append(rec SessionRecord) error { return f(rec) }

func TestWriteCompletesThroughTick(t *testing.T) {
	h := NewHistory(ts())
	src := sensors.NewFakeSource()

	done := make(chan SessionRecord, 1)
	sink := sinkFunc(func(rec SessionRecord) error {
		done <- rec
		return nil
	})

	var flushErr error
	completed := false
	started := h.Write(SessionRecord{BatteryID: "main"}, sink, func(err error) {
		completed = true
		flushErr = err
	})
	assert.True(t, started)
	assert.True(t, h.Writing())

	// Second write while outstanding is refused.
	assert.False(t, h.Write(SessionRecord{}, sink, nil))

	rec := <-done
	assert.Equal(t, "main", rec.BatteryID)

	// The completion is delivered through a later tick, not synchronously.
	for i := 0; i < 100 && h.Writing(); i++ {
		time.Sleep(time.Millisecond)
		h.Tick(src, "", "", "", ts())
	}
	assert.False(t, h.Writing())
	assert.True(t, completed)
	assert.NoError(t, flushErr)
}

func TestWriteFailureSurfacesInCallback(t *testing.T) {
	h := NewHistory(ts())
	src := sensors.NewFakeSource()

	fail := errors.New("disk full")
	wrote := make(chan struct{})
	sink := sinkFunc(func(SessionRecord) error {
		close(wrote)
		return fail
	})

	var got error
	h.Write(SessionRecord{}, sink, func(err error) { got = err })
	<-wrote
	for i := 0; i < 100 && h.Writing(); i++ {
		time.Sleep(time.Millisecond)
		h.Tick(src, "", "", "", ts())
	}
	assert.Equal(t, fail, got)
}

func TestTickPullsSampleFromSource(t *testing.T) {
	h := NewHistory(ts())
	src := sensors.NewFakeSource()
	src.SetCells("Cels", []float64{3.9, 3.8, 4.0})
	src.Set("Curr", 12.0)

	h.Tick(src, "Cels", "Curr", "", ts().Add(time.Second))

	assert.Equal(t, 3, h.CellCount())
	amps, set := h.MaxAmps()
	assert.True(t, set)
	assert.Equal(t, 12.0, amps)
}
