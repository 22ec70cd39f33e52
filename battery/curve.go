package battery

// The lithium cell discharge curve, as (voltage threshold, percent) steps.
// Lookup is a step function, not interpolated: the first entry whose
// threshold is >= the measured cell voltage wins. The table must stay
// ascending in both columns.
type curvePoint struct {
	volts   float64
	percent float64
}

var lithiumCurve = []curvePoint{
	{3.60, 0},
	{3.67, 5},
	{3.70, 10},
	{3.73, 15},
	{3.75, 20},
	{3.77, 25},
	{3.79, 30},
	{3.80, 35},
	{3.82, 40},
	{3.84, 45},
	{3.85, 50},
	{3.87, 55},
	{3.91, 60},
	{3.95, 65},
	{3.98, 70},
	{4.02, 75},
	{4.08, 80},
	{4.11, 85},
	{4.15, 90},
	{4.18, 95},
	{4.20, 100},
}

const (
	cellFullVolts  = 4.200
	cellEmptyVolts = 3.60
)

// PercentForCellVoltage estimates percent remaining for a single cell
// voltage: 100 above the full threshold, 0 below the empty threshold,
// otherwise the curve step the voltage falls on.
func PercentForCellVoltage(v float64) float64 {
	if v > cellFullVolts {
		return 100
	}
	if v < cellEmptyVolts {
		return 0
	}
	for _, p := range lithiumCurve {
		if p.volts >= v {
			return p.percent
		}
	}
	return 100
}
