package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fdm225/mahRe2/sensors"
)

type fakeModel struct {
	fullmAh int
	cells   int
}

func (m *fakeModel) BatteryConfig() (int, int) { return m.fullmAh, m.cells }

func optsFor(o Options) func() Options {
	return func() Options { return o }
}

func TestInitAppliesReserve(t *testing.T) {
	model := &fakeModel{fullmAh: 2000, cells: 4}
	opts := DefaultOptions()
	opts.ReservePercent = 20
	e := NewEstimator(model, sensors.NewFakeSource(), optsFor(opts), nil)

	e.Init()

	assert.Equal(t, 1600.0, e.CapacitymAh())
	assert.Equal(t, 1600.0, e.RemainmAh())
	assert.Equal(t, 0.0, e.RemainPercent())
	assert.Equal(t, 4, e.CellCount())
}

func TestVoltageMethodChosenWithoutConsumptionSensor(t *testing.T) {
	opts := DefaultOptions()
	opts.ConsumptionSensor = ""
	e := NewEstimator(&fakeModel{2000, 4}, sensors.NewFakeSource(), optsFor(opts), nil)
	e.Init()
	assert.True(t, e.UsesVoltageMethod())

	// Zero usable capacity also forces the voltage method.
	opts.ConsumptionSensor = "Capa"
	e = NewEstimator(&fakeModel{0, 4}, sensors.NewFakeSource(), optsFor(opts), nil)
	e.Init()
	assert.True(t, e.UsesVoltageMethod())

	e = NewEstimator(&fakeModel{2000, 4}, sensors.NewFakeSource(), optsFor(opts), nil)
	e.Init()
	assert.False(t, e.UsesVoltageMethod())
}

func TestVoltageMethodFullCellsMinusReserve(t *testing.T) {
	src := sensors.NewFakeSource()
	src.SetCells("Cels", []float64{4.2, 4.2, 4.2, 4.2})

	opts := DefaultOptions()
	opts.ConsumptionSensor = ""
	opts.ReservePercent = 20
	e := NewEstimator(&fakeModel{2000, 4}, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())
	h.Tick(src, "Cels", "", "", ts())
	e.Update(h)

	assert.Equal(t, 80.0, e.RemainPercent())
}

func TestVoltagePercentCanGoNegative(t *testing.T) {
	src := sensors.NewFakeSource()
	src.SetCells("Cels", []float64{3.5, 3.5, 3.5, 3.5})

	opts := DefaultOptions()
	opts.ConsumptionSensor = ""
	opts.ReservePercent = 20
	e := NewEstimator(&fakeModel{2000, 4}, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())
	h.Tick(src, "Cels", "", "", ts())
	e.Update(h)

	// Into the reserve: 0% from the curve minus the 20% reserve.
	assert.Equal(t, -20.0, e.RemainPercent())
}

func TestCoulombMethodDividesByFullCapacity(t *testing.T) {
	src := sensors.NewFakeSource()
	src.Set("Capa", 400)

	opts := DefaultOptions()
	opts.ConsumptionSensor = "Capa"
	opts.ReservePercent = 20
	e := NewEstimator(&fakeModel{2000, 4}, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())
	e.Update(h)

	assert.Equal(t, 1200.0, e.RemainmAh())
	// floor(1200/2000*100): full capacity, not the reserve-adjusted one.
	assert.Equal(t, 60.0, e.RemainPercent())
}

func TestUpdateIdempotentOnIdenticalInputs(t *testing.T) {
	src := sensors.NewFakeSource()
	src.Set("Capa", 250)
	src.SetCells("Cels", []float64{3.9, 3.9, 3.9, 3.9})

	opts := DefaultOptions()
	opts.ConsumptionSensor = "Capa"
	e := NewEstimator(&fakeModel{2000, 4}, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())
	h.Tick(src, "Cels", "Curr", "", ts())

	e.Update(h)
	first := e.RemainPercent()
	firstmAh := e.RemainmAh()
	e.Update(h)
	assert.Equal(t, first, e.RemainPercent())
	assert.Equal(t, firstmAh, e.RemainmAh())
}

func TestZeroConsumptionTriggersReinitOnlyAfterUsage(t *testing.T) {
	src := sensors.NewFakeSource()
	opts := DefaultOptions()
	opts.ConsumptionSensor = "Capa"
	e := NewEstimator(&fakeModel{2000, 4}, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())

	// Idle at zero: not a reset, just nothing consumed yet.
	src.Set("Capa", 0)
	e.Update(h)
	e.Update(h)
	assert.Equal(t, 1600.0, e.RemainmAh())

	// Consume, then read an exact zero: that is a telemetry reset.
	src.Set("Capa", 600)
	e.Update(h)
	assert.Equal(t, 1000.0, e.RemainmAh())

	src.Set("Capa", 0)
	e.Update(h)
	assert.Equal(t, 1600.0, e.RemainmAh())
	assert.Equal(t, 0.0, e.UsedmAh())

	// And the latch is closed again until new usage shows up.
	e.Update(h)
	assert.Equal(t, 1600.0, e.RemainmAh())
}

func TestConfigDriftReinitializes(t *testing.T) {
	src := sensors.NewFakeSource()
	src.Set("Capa", 400)
	model := &fakeModel{2000, 4}
	opts := DefaultOptions()
	opts.ConsumptionSensor = "Capa"
	e := NewEstimator(model, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())
	e.Update(h)
	assert.Equal(t, 1200.0, e.RemainmAh())

	// Capacity edited mid-flight.
	model.fullmAh = 3000
	e.Update(h)
	assert.Equal(t, 2400.0, e.CapacitymAh())
	assert.Equal(t, 2000.0, e.RemainmAh())
}

func TestVoltageDropoutDoesNotOverwriteLastKnown(t *testing.T) {
	src := sensors.NewFakeSource()
	src.SetCells("Cels", []float64{3.9, 3.9, 3.9, 3.9})

	opts := DefaultOptions()
	opts.ConsumptionSensor = ""
	e := NewEstimator(&fakeModel{2000, 4}, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())
	h.Tick(src, "Cels", "", "", ts())
	e.Update(h)
	assert.InDelta(t, 15.6, e.VoltsNow(), 0.001)
	want := e.RemainPercent()

	// Momentary dropout reads as absent -> total 0; last value must hold.
	src.Drop("Cels")
	h2 := NewHistory(ts())
	h2.Tick(src, "Cels", "", "", ts())
	e.Update(h2)
	assert.InDelta(t, 15.6, e.VoltsNow(), 0.001)
	assert.Equal(t, want, e.RemainPercent())
}

func TestMissingSensorsShortCircuit(t *testing.T) {
	src := sensors.NewFakeSource()
	opts := DefaultOptions()
	opts.ConsumptionSensor = "Capa" // configured but absent
	e := NewEstimator(&fakeModel{2000, 4}, src, optsFor(opts), nil)
	e.Init()

	h := NewHistory(ts())
	e.Update(h)

	// Neither branch moved; no panic, no error.
	assert.Equal(t, 1600.0, e.RemainmAh())
	assert.Equal(t, 0.0, e.VoltsNow())
}
