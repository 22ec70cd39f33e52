package sensors

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// SerialSource reads telemetry bridge frames from a serial port and serves
// the latest reading per configured sensor name. Frames carry numeric ids;
// the id-to-name mapping comes from configuration so the core only ever
// deals in names.
type SerialSource struct {
	mu      sync.Mutex
	latest  map[string]Reading
	names   map[byte]string
	closer  io.Closer
	done    chan struct{}
	log     *logrus.Logger
	badCRCs int
}

// OpenSerial opens the port and starts the reader goroutine. names maps
// frame ids to sensor names; frames with unmapped ids are dropped.
func OpenSerial(port string, baud int, names map[byte]string, log *logrus.Logger) (*SerialSource, error) {
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("open telemetry port %s: %w", port, err)
	}
	s := newSerialSource(names, log)
	s.closer = p
	go s.readLoop(p)
	return s, nil
}

func newSerialSource(names map[byte]string, log *logrus.Logger) *SerialSource {
	if log == nil {
		log = logrus.New()
	}
	n := make(map[byte]string, len(names))
	for id, name := range names {
		n[id] = name
	}
	return &SerialSource{
		latest: make(map[string]Reading),
		names:  n,
		done:   make(chan struct{}),
		log:    log,
	}
}

// Read returns the latest reading delivered for name, or Absent if none has
// arrived yet.
func (s *SerialSource) Read(name string) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		return NewAbsent()
	}
	return s.latest[name]
}

// Close stops the reader and closes the port.
func (s *SerialSource) Close() error {
	close(s.done)
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *SerialSource) readLoop(r io.Reader) {
	var buf []byte
	chunk := make([]byte, 256)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = s.drain(buf)
		}
		if err != nil {
			if err != io.EOF {
				s.log.Errorf("telemetry read: %v", err)
			}
			return
		}
	}
}

// drain decodes as many complete frames as the buffer holds and returns the
// unconsumed tail. Corrupt frames are skipped by resyncing past their start
// marker.
func (s *SerialSource) drain(buf []byte) []byte {
	for {
		// Resync to the next start marker.
		start := 0
		for start < len(buf) && buf[start] != frameStart {
			start++
		}
		buf = buf[start:]
		if len(buf) == 0 {
			return buf
		}

		frame, consumed, err := decodeFrame(buf)
		if err == errShortFrame {
			return buf
		}
		if err != nil {
			if err == ErrBadCRC {
				s.badCRCs++
				s.log.Debugf("dropping frame with bad crc (%d total)", s.badCRCs)
				buf = buf[consumed:]
			} else {
				buf = buf[1:]
			}
			continue
		}

		if name, ok := s.names[frame.ID]; ok {
			s.mu.Lock()
			s.latest[name] = frame.Reading
			s.mu.Unlock()
		}
		buf = buf[consumed:]
	}
}
