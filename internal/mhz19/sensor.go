package mhz19

import (
	"fmt"
	"time"

	"github.com/ghalamif/frostline/internal/ports"
)

// Sensor performs single read transactions against a module on a serial port.
// It owns the port exclusively; Close releases it.
type Sensor struct {
	port    ports.SerialPort
	decoder Decoder
	settle  time.Duration
	sleep   func(time.Duration)
	request [FrameLen]byte
}

// NewSensor wraps an open port. settle is the pause between writing the
// command and reading the answer.
func NewSensor(port ports.SerialPort, policy ChecksumPolicy, settle time.Duration) *Sensor {
	return &Sensor{
		port:    port,
		decoder: Decoder{Policy: policy},
		settle:  settle,
		sleep:   time.Sleep,
		request: EncodeReadRequest(),
	}
}

// Read runs one flush/write/wait/read/decode round trip.
func (s *Sensor) Read() (Result, error) {
	if err := s.port.ResetInputBuffer(); err != nil {
		return Result{}, fmt.Errorf("mhz19: flush input: %w", err)
	}
	if err := s.port.ResetOutputBuffer(); err != nil {
		return Result{}, fmt.Errorf("mhz19: flush output: %w", err)
	}
	if _, err := s.port.Write(s.request[:]); err != nil {
		return Result{}, fmt.Errorf("mhz19: write command: %w", err)
	}
	if s.settle > 0 {
		s.sleep(s.settle)
	}

	frame, err := s.readFrame()
	if err != nil {
		return Result{}, err
	}
	return s.decoder.Decode(frame)
}

// readFrame collects up to FrameLen bytes. A zero-length read means the port's
// read timeout elapsed, so whatever arrived so far is handed to the decoder.
func (s *Sensor) readFrame() ([]byte, error) {
	buf := make([]byte, FrameLen)
	n := 0
	for n < FrameLen {
		m, err := s.port.Read(buf[n:])
		if err != nil {
			return nil, fmt.Errorf("mhz19: read response: %w", err)
		}
		if m == 0 {
			break
		}
		n += m
	}
	return buf[:n], nil
}

func (s *Sensor) Close() error {
	return s.port.Close()
}
