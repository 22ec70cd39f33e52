package battery

import "time"

// SessionRecord is the durable summary of one reset-to-reset session. It is
// what the flight log stores and the ground link publishes.
type SessionRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	FlightMode   string    `json:"flight_mode"`
	BatteryID    string    `json:"battery_id"`
	MinCellVolts []float64 `json:"min_cell_volts"`
	MaxAmps      float64   `json:"max_amps"`
	MaxWatts     float64   `json:"max_watts"`
	UsedmAh      float64   `json:"used_mah"`
	FinalPercent float64   `json:"final_percent"`
	Duration     float64   `json:"duration_seconds"`
}

// RecordSink persists session records. Append may be slow (file or database
// I/O); History calls it off the tick loop.
type RecordSink interface {
	Append(rec SessionRecord) error
}
