package battery

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fdm225/mahRe2/scheduler"
	"github.com/fdm225/mahRe2/sensors"
)

// taskResetSwitch is the debounce latch for the session reset switch.
const taskResetSwitch = "reset.switch"

// resetHold is how long the reset switch must stay active before a new
// session starts; shorter glitches are ignored.
const resetHold = time.Second

// Status is the immutable snapshot published after every tick for render
// and transport layers.
type Status struct {
	Time          time.Time `json:"time"`
	VoltsNow      float64   `json:"volts_now"`
	CellCount     int       `json:"cell_count"`
	RemainmAh     float64   `json:"remain_mah"`
	RemainPercent float64   `json:"remain_percent"`
	UsedmAh       float64   `json:"used_mah"`
	MinCellVolts  []float64 `json:"min_cell_volts"`
	MaxAmps       float64   `json:"max_amps"`
	MaxWatts      float64   `json:"max_watts"`
	Writing       bool      `json:"writing"`
	VoltageMethod bool      `json:"voltage_method"`
	FlightMode    string    `json:"flight_mode"`
	BatteryID     string    `json:"battery_id"`
}

// Monitor owns one session's worth of core state and drives it through the
// fixed per-tick pipeline: reset-switch check, scheduler tick, history
// tick, capacity recompute, alert evaluation. Tick, Reset and Flush
// serialize on an internal mutex so a control surface may call them from
// its own goroutine.
type Monitor struct {
	now    func() time.Time
	src    sensors.Source
	player Player
	sink   RecordSink
	model  Model
	log    *logrus.Logger

	runMu sync.Mutex

	optsMu sync.Mutex
	opts   Options

	sched     *scheduler.Scheduler
	history   *History
	estimator *Estimator
	alerts    *Alerts

	statusMu sync.Mutex
	status   Status
}

func NewMonitor(opts Options, model Model, src sensors.Source, player Player, sink RecordSink, now func() time.Time, log *logrus.Logger) *Monitor {
	if log == nil {
		log = logrus.New()
	}
	m := &Monitor{
		now:    now,
		src:    src,
		player: player,
		sink:   sink,
		model:  model,
		log:    log,
		opts:   opts,
	}
	m.sched = scheduler.New(now)
	m.history = NewHistory(now())
	m.estimator = NewEstimator(model, src, m.Options, log)
	m.alerts = NewAlerts(m.sched, player, m.Options, log)
	m.estimator.Init()
	return m
}

// Options returns the current configuration snapshot.
func (m *Monitor) Options() Options {
	m.optsMu.Lock()
	defer m.optsMu.Unlock()
	return m.opts
}

// SetOptions swaps the configuration, e.g. after a config file reload. The
// estimator notices capacity-relevant changes on the next tick and
// re-initializes itself.
func (m *Monitor) SetOptions(opts Options) {
	m.optsMu.Lock()
	m.opts = opts
	m.optsMu.Unlock()
	m.log.Info("options updated")
}

// Tick advances the whole core by one step. Stage order is fixed: later
// stages read state mutated by earlier ones.
func (m *Monitor) Tick() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	opts := m.Options()
	now := m.now()

	m.checkResetSwitch(opts)
	m.sched.Tick()
	m.history.Tick(m.src, opts.VoltageSensor, opts.CurrentSensor, opts.ThrottleChannel, now)

	// While a flush is outstanding the estimate must not move under it.
	if !m.history.Writing() {
		m.estimator.Update(m.history)
		m.alerts.Evaluate(m.estimator, m.history)
	}

	m.publishStatus(opts, now)
}

// checkResetSwitch arms a debounce latch while the reset switch reads
// active and starts a new session once it has been held for resetHold.
func (m *Monitor) checkResetSwitch(opts Options) {
	if opts.ResetSwitch == "" {
		return
	}
	r := m.src.Read(opts.ResetSwitch)
	if r.IsAbsent() || r.Value() <= 0 {
		m.sched.Remove(taskResetSwitch)
		return
	}

	m.sched.Add(taskResetSwitch, true, resetHold, nil)
	if held := m.sched.Check(taskResetSwitch); held != nil && *held {
		// Resolve the latch so a switch left on doesn't reset every tick.
		m.sched.Clear(taskResetSwitch)
		m.reset()
	}
}

// Reset flushes the finished session, then rebuilds every piece of
// per-session state. A flush already in flight is abandoned; the sink has
// the record handed to it either way.
func (m *Monitor) Reset() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	m.reset()
}

func (m *Monitor) reset() {
	m.log.Info("reset: closing session and starting a new one")

	rec := m.sessionRecord()
	if m.history.Writing() {
		m.log.Warn("reset during flush, abandoning previous write")
		if m.sink != nil {
			go func() {
				if err := m.sink.Append(rec); err != nil {
					m.log.Errorf("session flush: %v", err)
				}
			}()
		}
	} else {
		m.history.Write(rec, m.sink, func(err error) {
			if err != nil {
				m.log.Errorf("session flush: %v", err)
			}
		})
	}

	resetLatch := m.sched.Check(taskResetSwitch) != nil

	m.history = NewHistory(m.now())
	m.sched.Reset()
	m.alerts.Reset()
	m.estimator.Init()

	// Keep the latch resolved so the still-held switch has to be released
	// before it can start another session.
	if resetLatch {
		m.sched.Add(taskResetSwitch, true, resetHold, nil)
		m.sched.Clear(taskResetSwitch)
	}
}

// Flush writes the current session summary without resetting. Returns false
// while a previous flush is still outstanding.
func (m *Monitor) Flush() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.history.Write(m.sessionRecord(), m.sink, func(err error) {
		if err != nil {
			m.log.Errorf("session flush: %v", err)
		}
	})
}

func (m *Monitor) sessionRecord() SessionRecord {
	opts := m.Options()
	now := m.now()
	maxAmps, _ := m.history.MaxAmps()
	maxWatts, _ := m.history.MaxWatts()
	return SessionRecord{
		Timestamp:    now,
		FlightMode:   opts.FlightMode,
		BatteryID:    opts.BatteryID,
		MinCellVolts: m.history.MinCellVolts(),
		MaxAmps:      maxAmps,
		MaxWatts:     maxWatts,
		UsedmAh:      m.estimator.UsedmAh(),
		FinalPercent: m.estimator.RemainPercent(),
		Duration:     m.history.Duration(now).Seconds(),
	}
}

func (m *Monitor) publishStatus(opts Options, now time.Time) {
	maxAmps, _ := m.history.MaxAmps()
	maxWatts, _ := m.history.MaxWatts()
	s := Status{
		Time:          now,
		VoltsNow:      m.estimator.VoltsNow(),
		CellCount:     m.estimator.CellCount(),
		RemainmAh:     m.estimator.RemainmAh(),
		RemainPercent: m.estimator.RemainPercent(),
		UsedmAh:       m.estimator.UsedmAh(),
		MinCellVolts:  m.history.MinCellVolts(),
		MaxAmps:       maxAmps,
		MaxWatts:      maxWatts,
		Writing:       m.history.Writing(),
		VoltageMethod: m.estimator.UsesVoltageMethod(),
		FlightMode:    opts.FlightMode,
		BatteryID:     opts.BatteryID,
	}
	m.statusMu.Lock()
	m.status = s
	m.statusMu.Unlock()
}

// Status returns the snapshot published by the most recent tick. Safe for
// concurrent use.
func (m *Monitor) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}
