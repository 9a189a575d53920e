package mhz19

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type fakePort struct {
	written bytes.Buffer
	chunks  [][]byte
	readErr error
	flushes int
	closed  bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	f.chunks = f.chunks[1:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakePort) ResetInputBuffer() error     { f.flushes++; return nil }
func (f *fakePort) ResetOutputBuffer() error    { f.flushes++; return nil }
func (f *fakePort) Close() error                { f.closed = true; return nil }

func newTestSensor(port *fakePort, policy ChecksumPolicy) *Sensor {
	s := NewSensor(port, policy, 100*time.Millisecond)
	s.sleep = func(time.Duration) {}
	return s
}

func TestSensorReadAssemblesChunkedFrame(t *testing.T) {
	frame := responseFrame(0x01, 0x90)
	port := &fakePort{chunks: [][]byte{frame[:4], frame[4:]}}
	s := newTestSensor(port, Strict)

	res, err := s.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.PPM != 400 {
		t.Fatalf("expected 400 ppm, got %d", res.PPM)
	}
	req := EncodeReadRequest()
	if !bytes.Equal(port.written.Bytes(), req[:]) {
		t.Fatalf("expected request % X to be written, got % X", req, port.written.Bytes())
	}
	if port.flushes != 2 {
		t.Fatalf("expected input and output flush, got %d", port.flushes)
	}
}

func TestSensorReadTimeoutYieldsShortFrame(t *testing.T) {
	frame := responseFrame(0x01, 0x90)
	port := &fakePort{chunks: [][]byte{frame[:5]}}
	s := newTestSensor(port, Lenient)

	if _, err := s.Read(); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestSensorReadPortError(t *testing.T) {
	boom := errors.New("device unplugged")
	s := newTestSensor(&fakePort{readErr: boom}, Lenient)

	if _, err := s.Read(); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped port error, got %v", err)
	}
}

func TestSensorClose(t *testing.T) {
	port := &fakePort{}
	if err := newTestSensor(port, Lenient).Close(); err != nil || !port.closed {
		t.Fatalf("expected port to be closed, err=%v", err)
	}
}
