package battery

// Options is the recognized configuration surface of the core. Sensor and
// switch fields name host telemetry sources; an empty name disables the
// dependent computation rather than erroring.
type Options struct {
	// VoltageSensor reports pack voltage, either per-cell (FLVSS style) or
	// as a single scalar (VFAS style).
	VoltageSensor string
	// CurrentSensor reports instantaneous draw in amps.
	CurrentSensor string
	// ConsumptionSensor reports cumulative used mAh. When empty the
	// estimator runs on the voltage curve alone.
	ConsumptionSensor string
	// ThrottleChannel reports throttle percent.
	ThrottleChannel string
	// ResetSwitch names the switch that starts a new session.
	ResetSwitch string

	// ReservePercent [0-100] is the safety margin netted into usable
	// capacity, so 0% remaining still leaves charge in the pack.
	ReservePercent int
	// FullCellVolts is the per-cell threshold for the full-charge check.
	FullCellVolts float64
	// CellDeltaVolts is the maximum tolerated spread between any two cells.
	CellDeltaVolts float64

	// Announce enables percent-remaining milestone playback.
	Announce bool
	// MaxZeroAlerts caps how often the exhausted cue repeats while the
	// estimate stays at or below zero.
	MaxZeroAlerts int

	// FlightMode and BatteryID key the persisted session record.
	FlightMode string
	BatteryID  string
}

// DefaultOptions mirrors the values a stock installation ships with.
func DefaultOptions() Options {
	return Options{
		VoltageSensor:  "Cels",
		CurrentSensor:  "Curr",
		ReservePercent: 20,
		FullCellVolts:  4.15,
		CellDeltaVolts: 0.2,
		Announce:       true,
		MaxZeroAlerts:  3,
		FlightMode:     "default",
		BatteryID:      "main",
	}
}
