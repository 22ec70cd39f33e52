package sensors

import "sync"

// Source supplies the latest value for a named sensor. Read never blocks;
// an unknown or empty name yields an Absent reading.
type Source interface {
	Read(name string) Reading
}

// FakeSource is a map-backed Source for tests and bench runs without a
// telemetry link attached.
type FakeSource struct {
	mu       sync.Mutex
	readings map[string]Reading
}

func NewFakeSource() *FakeSource {
	return &FakeSource{readings: make(map[string]Reading)}
}

func (f *FakeSource) Read(name string) Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "" {
		return NewAbsent()
	}
	return f.readings[name]
}

// Set stores a scalar value for name.
func (f *FakeSource) Set(name string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings[name] = NewScalar(v)
}

// SetCells stores a per-cell vector for name.
func (f *FakeSource) SetCells(name string, cells []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings[name] = NewCells(cells)
}

// Drop makes name read as absent again, simulating a lost sensor.
func (f *FakeSource) Drop(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.readings, name)
}
