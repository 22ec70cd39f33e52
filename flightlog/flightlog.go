// Package flightlog persists session records to a local SQLite database.
// Records are append-only: one row per reset-to-reset session, keyed by
// flight mode and battery identity.
package flightlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fdm225/mahRe2/battery"
)

const schema = `CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	flight_mode TEXT NOT NULL,
	battery_id TEXT NOT NULL,
	min_cell_volts TEXT NOT NULL,
	max_amps REAL NOT NULL,
	max_watts REAL NOT NULL,
	used_mah REAL NOT NULL,
	final_percent REAL NOT NULL,
	duration_seconds REAL NOT NULL
);`

type row struct {
	ID           int64   `db:"id"`
	Timestamp    string  `db:"timestamp"`
	FlightMode   string  `db:"flight_mode"`
	BatteryID    string  `db:"battery_id"`
	MinCellVolts string  `db:"min_cell_volts"`
	MaxAmps      float64 `db:"max_amps"`
	MaxWatts     float64 `db:"max_watts"`
	UsedmAh      float64 `db:"used_mah"`
	FinalPercent float64 `db:"final_percent"`
	Duration     float64 `db:"duration_seconds"`
}

// Store is a battery.RecordSink backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database at path, creating it and the schema if
// needed. WAL mode keeps concurrent reads from blocking the tick-driven
// writer.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open flight log: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one session record.
func (s *Store) Append(rec battery.SessionRecord) error {
	_, err := s.db.Exec(`INSERT INTO sessions (
		timestamp, flight_mode, battery_id, min_cell_volts,
		max_amps, max_watts, used_mah, final_percent, duration_seconds)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.FlightMode,
		rec.BatteryID,
		joinVolts(rec.MinCellVolts),
		rec.MaxAmps,
		rec.MaxWatts,
		rec.UsedmAh,
		rec.FinalPercent,
		rec.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// LastN returns the most recent n sessions in chronological order.
func (s *Store) LastN(n int) ([]battery.SessionRecord, error) {
	var rows []row
	err := s.db.Select(&rows, `SELECT * FROM sessions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}

	recs := make([]battery.SessionRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (r row) toRecord() (battery.SessionRecord, error) {
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return battery.SessionRecord{}, fmt.Errorf("bad timestamp %q: %w", r.Timestamp, err)
	}
	volts, err := splitVolts(r.MinCellVolts)
	if err != nil {
		return battery.SessionRecord{}, err
	}
	return battery.SessionRecord{
		Timestamp:    ts,
		FlightMode:   r.FlightMode,
		BatteryID:    r.BatteryID,
		MinCellVolts: volts,
		MaxAmps:      r.MaxAmps,
		MaxWatts:     r.MaxWatts,
		UsedmAh:      r.UsedmAh,
		FinalPercent: r.FinalPercent,
		Duration:     r.Duration,
	}, nil
}

func joinVolts(volts []float64) string {
	parts := make([]string, len(volts))
	for i, v := range volts {
		parts[i] = strconv.FormatFloat(v, 'f', 3, 64)
	}
	return strings.Join(parts, ",")
}

func splitVolts(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	volts := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad cell voltage %q: %w", p, err)
		}
		volts[i] = v
	}
	return volts, nil
}
