package battery

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fdm225/mahRe2/sensors"
)

// voltsEpsilon guards the low-pass voltage read: a sample below this is a
// momentary dropout and must not overwrite the last known total voltage.
const voltsEpsilon = 0.5

// Model supplies the pack configuration for the current flight mode: full
// capacity in mAh and the expected series cell count.
type Model interface {
	BatteryConfig() (fullmAh int, cellCount int)
}

// Estimator fuses the voltage-curve estimate with coulomb counting into a
// single remaining-capacity figure. The estimation method is chosen at init
// and pinned for the whole session; it never alternates tick to tick.
//
// The two percent formulas are deliberately asymmetric, matching long
// field-tested behavior: the voltage method subtracts the reserve after the
// curve lookup (and may go negative, meaning "into the reserve"), while the
// coulomb method divides by the FULL capacity so the reserve is already
// netted out of the used/remaining arithmetic.
type Estimator struct {
	model Model
	src   sensors.Source
	opts  func() Options
	log   *logrus.Logger

	// Cached config for drift detection.
	cfgFullmAh  int
	cfgCells    int
	cfgReserve  int
	consumption string

	batCapFullmAh float64
	batCapmAh     float64
	batRemainmAh  float64
	batRemPer     float64
	useVoltsNotmAh bool
	cellCount     int
	voltsNow      float64
	voltsSet      bool
	voltsPercent  float64
	lastUsedmAh   float64
	canReinit     bool
	initialized   bool
}

func NewEstimator(model Model, src sensors.Source, opts func() Options, log *logrus.Logger) *Estimator {
	if log == nil {
		log = logrus.New()
	}
	return &Estimator{
		model: model,
		src:   src,
		opts:  opts,
		log:   log,
	}
}

// Init reads the configured pack and starts a fresh session: remaining
// capacity is the reserve-adjusted capacity, percent and counters are
// zeroed, and the estimation method is chosen. Voltage-only estimation is
// used when no consumption sensor is configured or the usable capacity is
// zero.
func (e *Estimator) Init() {
	opts := e.opts()
	fullmAh, cells := e.model.BatteryConfig()

	e.cfgFullmAh = fullmAh
	e.cfgCells = cells
	e.cfgReserve = opts.ReservePercent
	e.consumption = opts.ConsumptionSensor

	e.batCapFullmAh = float64(fullmAh)
	e.batCapmAh = float64(fullmAh) * float64(100-opts.ReservePercent) / 100
	e.batRemainmAh = e.batCapmAh
	e.batRemPer = 0
	e.cellCount = cells
	e.voltsNow = 0
	e.voltsSet = false
	e.voltsPercent = 0
	e.lastUsedmAh = 0
	e.canReinit = false
	e.useVoltsNotmAh = opts.ConsumptionSensor == "" || e.batCapmAh == 0
	e.initialized = true

	method := "coulomb"
	if e.useVoltsNotmAh {
		method = "voltage"
	}
	e.log.Infof("capacity init: %dmAh full, %dmAh usable (%d%% reserve), %d cells, %s method",
		fullmAh, int(e.batCapmAh), opts.ReservePercent, cells, method)
}

// Update recomputes remaining capacity from the latest telemetry. Missing
// sensors short-circuit their branch; a single bad sample never errors.
func (e *Estimator) Update(h *History) {
	if !e.initialized {
		e.Init()
	}

	// Capacity or cell count edited mid-flight, or the model was swapped.
	if e.configDrifted() {
		e.log.Info("battery configuration changed, re-initializing")
		e.Init()
	}

	e.updateCoulomb()
	e.updateVolts(h)
	e.blend()
}

func (e *Estimator) configDrifted() bool {
	fullmAh, cells := e.model.BatteryConfig()
	opts := e.opts()
	return fullmAh != e.cfgFullmAh ||
		cells != e.cfgCells ||
		opts.ReservePercent != e.cfgReserve ||
		opts.ConsumptionSensor != e.consumption
}

func (e *Estimator) updateCoulomb() {
	if e.consumption == "" {
		return
	}
	r := e.src.Read(e.consumption)
	if r.IsAbsent() {
		return
	}
	used := r.Value()

	// An exact zero after usage has been observed means the telemetry
	// session was reset, not that nothing has been consumed. The canReinit
	// latch only opens once usage > 0 so an idle pack cannot re-init over
	// and over.
	if used == 0 && e.canReinit {
		e.log.Info("consumption returned to zero, telemetry reset detected")
		e.Init()
		return
	}
	if used > 0 {
		e.canReinit = true
	}

	e.lastUsedmAh = used
	e.batRemainmAh = e.batCapmAh - used
}

func (e *Estimator) updateVolts(h *History) {
	total := h.TotalVolts()
	if total >= voltsEpsilon || !e.voltsSet {
		e.voltsNow = total
		e.voltsSet = true
	}
	if e.voltsNow <= 0 || e.cellCount <= 0 {
		return
	}
	e.voltsPercent = PercentForCellVoltage(e.voltsNow / float64(e.cellCount))
}

func (e *Estimator) blend() {
	if e.useVoltsNotmAh {
		e.batRemPer = e.voltsPercent - float64(e.cfgReserve)
	} else if e.batCapmAh > 0 {
		e.batRemPer = math.Floor(e.batRemainmAh / e.batCapFullmAh * 100)
	}
}

// RemainmAh returns the estimated remaining capacity in mAh.
func (e *Estimator) RemainmAh() float64 { return e.batRemainmAh }

// RemainPercent returns the blended percent remaining. It is intentionally
// not clamped to [0,100]: negative values signal discharge into the
// reserve.
func (e *Estimator) RemainPercent() float64 { return e.batRemPer }

// UsedmAh returns the last cumulative consumption reading.
func (e *Estimator) UsedmAh() float64 { return e.lastUsedmAh }

// CapacitymAh returns the reserve-adjusted usable capacity.
func (e *Estimator) CapacitymAh() float64 { return e.batCapmAh }

// CellCount returns the configured series cell count.
func (e *Estimator) CellCount() int { return e.cellCount }

// VoltsNow returns the low-pass-guarded total voltage.
func (e *Estimator) VoltsNow() float64 { return e.voltsNow }

// UsesVoltageMethod reports whether the session is pinned to the
// voltage-curve estimate rather than coulomb counting.
func (e *Estimator) UsesVoltageMethod() bool { return e.useVoltsNotmAh }
