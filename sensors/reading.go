// Package sensors defines how telemetry values enter the system. A host can
// hand back nothing, a single scalar, or an ordered per-cell vector for any
// sensor name, so the shape is decided once at the read boundary and carried
// as a tagged Reading rather than re-inspected at every use site.
package sensors

// Kind tags the shape of a Reading.
type Kind int

const (
	// Absent means the sensor is not configured or returned no value.
	Absent Kind = iota
	// Scalar is a single value, e.g. pack voltage from a VFAS sensor.
	Scalar
	// Cells is an ordered per-cell vector, e.g. from an FLVSS sensor.
	Cells
)

// Reading is a single sensor value. The zero value is Absent.
type Reading struct {
	kind  Kind
	value float64
	cells []float64
}

// NewScalar wraps a single value.
func NewScalar(v float64) Reading {
	return Reading{kind: Scalar, value: v}
}

// NewCells wraps an ordered per-cell vector. The slice is copied so later
// mutation by the producer cannot change a delivered reading.
func NewCells(cells []float64) Reading {
	c := make([]float64, len(cells))
	copy(c, cells)
	return Reading{kind: Cells, cells: c}
}

// NewAbsent is the explicit no-value reading.
func NewAbsent() Reading {
	return Reading{}
}

func (r Reading) Kind() Kind { return r.kind }

func (r Reading) IsAbsent() bool { return r.kind == Absent }

// Value returns the scalar value, or 0 for non-scalar readings.
func (r Reading) Value() float64 {
	if r.kind != Scalar {
		return 0
	}
	return r.value
}

// CellVolts returns the per-cell vector, or nil for non-vector readings.
func (r Reading) CellVolts() []float64 {
	if r.kind != Cells {
		return nil
	}
	return r.cells
}

// CellCount returns the number of reported cells: len(vector) for Cells, 1
// for Scalar (a bare pack voltage is treated as one logical cell), 0 when
// absent.
func (r Reading) CellCount() int {
	switch r.kind {
	case Cells:
		return len(r.cells)
	case Scalar:
		return 1
	default:
		return 0
	}
}

// Total returns the sum of cell voltages, the scalar value, or 0 when
// absent.
func (r Reading) Total() float64 {
	switch r.kind {
	case Cells:
		var sum float64
		for _, v := range r.cells {
			sum += v
		}
		return sum
	case Scalar:
		return r.value
	default:
		return 0
	}
}
