package battery

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fdm225/mahRe2/scheduler"
	"github.com/fdm225/mahRe2/sensors"
)

// Player requests playback of a named sound asset. Fire-and-forget; the
// core never waits on completion.
type Player interface {
	Play(sound string)
}

// Sound asset names. Percent milestones map to "remaining_<n>".
const (
	SoundBatteryNotFull  = "battery_not_full"
	SoundCellDelta       = "inconsistent_cells"
	SoundMissingCell     = "missing_cell"
	SoundBatteryCritical = "battery_critical"
)

func milestoneSound(percent int) string {
	return fmt.Sprintf("remaining_%d", percent)
}

// Scheduler task names used by the alert layer.
const (
	taskCellDelta   = "alert.celldelta"
	taskMissingCell = "alert.missingcell"
	taskBatZero     = "alert.batzero"
)

// alertRepeat is how often a standing condition re-announces itself.
const alertRepeat = 10 * time.Second

// A scalar pack reading below this per expected cell is implausible for a
// connected pack and treated as a missing cell.
const missingCellVoltsPerCell = 3.0

// Alerts decides when warning sounds are requested. All checks are
// idempotent per tick and never mutate estimator or history state; repeated
// conditions are debounced through the scheduler.
type Alerts struct {
	sched  *scheduler.Scheduler
	player Player
	opts   func() Options
	log    *logrus.Logger

	checkBatNotFull bool
	atZeroPlayed    int
	lastAnnounced   int
	announcedSet    bool
}

func NewAlerts(sched *scheduler.Scheduler, player Player, opts func() Options, log *logrus.Logger) *Alerts {
	if log == nil {
		log = logrus.New()
	}
	return &Alerts{
		sched:           sched,
		player:          player,
		opts:            opts,
		log:             log,
		checkBatNotFull: true,
	}
}

// Reset re-arms every per-session latch and counter. The monitor calls this
// on a reset-switch event, after wiping the scheduler.
func (a *Alerts) Reset() {
	a.checkBatNotFull = true
	a.atZeroPlayed = 0
	a.announcedSet = false
	a.lastAnnounced = 0
}

// Evaluate runs all alert checks against the latest state.
func (a *Alerts) Evaluate(est *Estimator, h *History) {
	volts := h.LatestVolts()
	a.checkForFullBattery(volts, est.CellCount())
	a.checkCellDeltaVoltage(volts)
	a.checkForMissingCells(volts, est.CellCount())
	a.playPercentRemaining(est.RemainPercent(), volts)
}

// checkForFullBattery runs once per session, as soon as telemetry is
// available: any cell under the full threshold triggers a single "battery
// not full" warning. The latch disarms regardless of outcome.
//
// With a scalar pack voltage the comparison is against threshold ×
// cellCount (the historical per-cell-scaled variant).
func (a *Alerts) checkForFullBattery(volts sensors.Reading, cellCount int) {
	if !a.checkBatNotFull || volts.IsAbsent() {
		return
	}
	a.checkBatNotFull = false

	opts := a.opts()
	full := true
	switch volts.Kind() {
	case sensors.Cells:
		for _, v := range volts.CellVolts() {
			if v < opts.FullCellVolts {
				full = false
				break
			}
		}
	case sensors.Scalar:
		full = volts.Value() >= opts.FullCellVolts*float64(cellCount)
	}

	if !full {
		a.log.Infof("battery not full at session start (%.2fV total)", volts.Total())
		a.player.Play(SoundBatteryNotFull)
	}
}

// checkCellDeltaVoltage warns repeatedly while any two cells differ by more
// than the configured delta, and stands down once they agree again.
func (a *Alerts) checkCellDeltaVoltage(volts sensors.Reading) {
	cells := volts.CellVolts()
	if len(cells) < 2 {
		return
	}

	lo, hi := cells[0], cells[0]
	for _, v := range cells[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	if hi-lo > a.opts().CellDeltaVolts {
		a.sched.AddPeriodic(taskCellDelta, true, alertRepeat, func() {
			a.player.Play(SoundCellDelta)
		})
	} else {
		a.sched.Remove(taskCellDelta)
	}
}

// checkForMissingCells warns repeatedly while the reported cell count (or
// an implausibly low scalar pack voltage) disagrees with the configured
// count.
func (a *Alerts) checkForMissingCells(volts sensors.Reading, cellCount int) {
	if cellCount <= 0 {
		return
	}

	missing := false
	switch volts.Kind() {
	case sensors.Cells:
		missing = volts.CellCount() != cellCount
	case sensors.Scalar:
		missing = volts.Value() < missingCellVoltsPerCell*float64(cellCount)
	default:
		return
	}

	if missing {
		a.sched.AddPeriodic(taskMissingCell, true, alertRepeat, func() {
			a.player.Play(SoundMissingCell)
		})
	} else {
		a.sched.Remove(taskMissingCell)
	}
}

// playPercentRemaining announces milestone crossings on the way down:
// multiples of 10, or of 5 below 10%. At or below zero with live telemetry
// a distinct exhausted cue repeats up to MaxZeroAlerts times, then stays
// quiet until the estimate comes back above zero.
func (a *Alerts) playPercentRemaining(percent float64, volts sensors.Reading) {
	opts := a.opts()

	if percent <= 0 {
		if volts.IsAbsent() {
			return
		}
		if a.atZeroPlayed >= opts.MaxZeroAlerts {
			a.sched.Remove(taskBatZero)
			return
		}
		a.sched.AddPeriodic(taskBatZero, true, alertRepeat, func() {
			a.player.Play(SoundBatteryCritical)
			a.atZeroPlayed++
		})
		a.lastAnnounced = 0
		a.announcedSet = true
		return
	}

	a.sched.Remove(taskBatZero)
	a.atZeroPlayed = 0

	if !opts.Announce {
		return
	}

	m := milestone(percent)
	switch {
	case !a.announcedSet:
		// First estimate of the session sets the baseline silently.
		a.lastAnnounced = m
		a.announcedSet = true
	case m < a.lastAnnounced:
		a.player.Play(milestoneSound(m))
		a.lastAnnounced = m
	case m > a.lastAnnounced:
		// Pack swapped or recharged; re-arm without announcing.
		a.lastAnnounced = m
	}
}

func milestone(percent float64) int {
	step := 10.0
	if percent < 10 {
		step = 5
	}
	return int(math.Floor(percent/step) * step)
}
