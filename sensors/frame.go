package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sigurn/crc8"
)

// Telemetry bridge frame layout:
//
//	0xA9 | id | kind | scale | count | count × uint16 (big endian) | crc8
//
// Values are unsigned integers divided by 10^scale. The CRC covers the
// whole frame from the start marker through the payload, polynomial
// 1 + x^4 + x^5 + x^8.

const (
	frameStart     = 0xA9
	frameKindScalar = 0x01
	frameKindCells  = 0x02

	maxFrameValues = 16
	frameOverhead  = 5 // start, id, kind, scale, count
)

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

var (
	errShortFrame = errors.New("incomplete frame")
	ErrBadCRC     = errors.New("frame crc mismatch")
)

// Frame is one decoded telemetry value from the bridge.
type Frame struct {
	ID      byte
	Reading Reading
}

// decodeFrame decodes a single frame starting at buf[0], which must be the
// start marker. It returns the frame and the number of bytes consumed.
// errShortFrame means more bytes are needed; other errors mean the frame is
// corrupt and the caller should resync past the start marker.
func decodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < frameOverhead {
		return Frame{}, 0, errShortFrame
	}
	if buf[0] != frameStart {
		return Frame{}, 0, fmt.Errorf("bad start marker: %#02x", buf[0])
	}

	id := buf[1]
	kind := buf[2]
	scale := buf[3]
	count := int(buf[4])

	if count == 0 || count > maxFrameValues {
		return Frame{}, 0, fmt.Errorf("bad value count: %d", count)
	}
	if kind != frameKindScalar && kind != frameKindCells {
		return Frame{}, 0, fmt.Errorf("bad frame kind: %#02x", kind)
	}
	if kind == frameKindScalar && count != 1 {
		return Frame{}, 0, fmt.Errorf("scalar frame with %d values", count)
	}
	if scale > 4 {
		return Frame{}, 0, fmt.Errorf("bad scale: %d", scale)
	}

	total := frameOverhead + 2*count + 1
	if len(buf) < total {
		return Frame{}, 0, errShortFrame
	}

	body := buf[1 : total-1]
	if crc8.Checksum(buf[:total-1], crcTable) != buf[total-1] {
		return Frame{}, total, ErrBadCRC
	}

	div := math.Pow10(int(scale))
	payload := body[frameOverhead-1:]
	values := make([]float64, count)
	for i := 0; i < count; i++ {
		raw := binary.BigEndian.Uint16(payload[2*i:])
		values[i] = float64(raw) / div
	}

	f := Frame{ID: id}
	if kind == frameKindScalar {
		f.Reading = NewScalar(values[0])
	} else {
		f.Reading = NewCells(values)
	}
	return f, total, nil
}

// EncodeFrame builds the wire form of a reading. Values are clamped to the
// uint16 range after scaling. Used by the bench bridge and by tests.
func EncodeFrame(id byte, r Reading, scale uint8) ([]byte, error) {
	var kind byte
	var values []float64
	switch r.Kind() {
	case Scalar:
		kind = frameKindScalar
		values = []float64{r.Value()}
	case Cells:
		kind = frameKindCells
		values = r.CellVolts()
	default:
		return nil, errors.New("cannot encode absent reading")
	}
	if len(values) == 0 || len(values) > maxFrameValues {
		return nil, fmt.Errorf("bad value count: %d", len(values))
	}
	if scale > 4 {
		return nil, fmt.Errorf("bad scale: %d", scale)
	}

	mul := math.Pow10(int(scale))
	buf := []byte{frameStart, id, kind, scale, byte(len(values))}
	for _, v := range values {
		raw := math.Round(v * mul)
		if raw < 0 {
			raw = 0
		}
		if raw > math.MaxUint16 {
			raw = math.MaxUint16
		}
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(raw))
		buf = append(buf, b[0], b[1])
	}
	buf = append(buf, crc8.Checksum(buf, crcTable))
	return buf, nil
}
