package sensors

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDecodeScalarFrame(t *testing.T) {
	wire, err := EncodeFrame(0x01, NewScalar(12.53), 2)
	assert.NoError(t, err)

	frame, consumed, err := decodeFrame(wire)
	assert.NoError(t, err)
	assert.Equal(t, len(wire), consumed)
	assert.Equal(t, byte(0x01), frame.ID)
	assert.Equal(t, Scalar, frame.Reading.Kind())
	assert.InDelta(t, 12.53, frame.Reading.Value(), 0.001)
}

func TestDecodeCellFrame(t *testing.T) {
	cells := []float64{3.85, 3.80, 3.99}
	wire, err := EncodeFrame(0x02, NewCells(cells), 2)
	assert.NoError(t, err)

	frame, _, err := decodeFrame(wire)
	assert.NoError(t, err)
	assert.Equal(t, Cells, frame.Reading.Kind())
	assert.InDeltaSlice(t, cells, frame.Reading.CellVolts(), 0.001)
	assert.InDelta(t, 11.64, frame.Reading.Total(), 0.001)
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	wire, err := EncodeFrame(0x01, NewScalar(4.2), 2)
	assert.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF

	_, _, err = decodeFrame(wire)
	assert.Equal(t, ErrBadCRC, err)
}

func TestDecodeShortFrameWantsMore(t *testing.T) {
	wire, err := EncodeFrame(0x01, NewScalar(4.2), 2)
	assert.NoError(t, err)

	_, _, err = decodeFrame(wire[:3])
	assert.Equal(t, errShortFrame, err)
	_, _, err = decodeFrame(wire[:len(wire)-1])
	assert.Equal(t, errShortFrame, err)
}

func TestEncodeRejectsAbsent(t *testing.T) {
	_, err := EncodeFrame(0x01, NewAbsent(), 2)
	assert.Error(t, err)
}

func TestDrainHandlesGarbageAndSplitFrames(t *testing.T) {
	s := newSerialSource(map[byte]string{0x01: "VFAS", 0x02: "Cels"}, logrus.New())

	scalar, err := EncodeFrame(0x01, NewScalar(16.8), 2)
	assert.NoError(t, err)
	cells, err := EncodeFrame(0x02, NewCells([]float64{4.2, 4.2, 4.2, 4.2}), 2)
	assert.NoError(t, err)

	stream := append([]byte{0x00, 0x37, 0x42}, scalar...)
	stream = append(stream, cells...)

	// Feed in two arbitrary chunks to exercise reassembly.
	rest := s.drain(stream[:7])
	rest = s.drain(append(rest, stream[7:]...))
	assert.Empty(t, rest)

	assert.InDelta(t, 16.8, s.Read("VFAS").Value(), 0.001)
	assert.Equal(t, 4, s.Read("Cels").CellCount())
}

func TestDrainSkipsCorruptFrame(t *testing.T) {
	s := newSerialSource(map[byte]string{0x01: "VFAS"}, logrus.New())

	good, err := EncodeFrame(0x01, NewScalar(15.2), 2)
	assert.NoError(t, err)
	bad := make([]byte, len(good))
	copy(bad, good)
	bad[len(bad)-1] ^= 0xFF

	rest := s.drain(append(bad, good...))
	assert.Empty(t, rest)
	assert.InDelta(t, 15.2, s.Read("VFAS").Value(), 0.001)
	assert.Equal(t, 1, s.badCRCs)
}

func TestReadUnknownOrEmptyNameIsAbsent(t *testing.T) {
	s := newSerialSource(nil, logrus.New())
	assert.True(t, s.Read("").IsAbsent())
	assert.True(t, s.Read("RPM").IsAbsent())
}
