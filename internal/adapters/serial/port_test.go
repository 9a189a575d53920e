package serial

import (
	"errors"
	"testing"
	"time"

	bugst "go.bug.st/serial"
)

type fakePort struct {
	bugst.Port
	timeout  time.Duration
	flushed  int
	closed   bool
	flushErr error
}

func (f *fakePort) SetReadTimeout(t time.Duration) error { f.timeout = t; return nil }
func (f *fakePort) ResetInputBuffer() error              { f.flushed++; return f.flushErr }
func (f *fakePort) Close() error                         { f.closed = true; return nil }

func TestOpenConfiguresPort(t *testing.T) {
	fp := &fakePort{}
	var gotName string
	var gotMode *bugst.Mode
	var slept time.Duration

	p, err := open(Config{Device: "/dev/ttyS0", WarmUp: 2 * time.Second},
		func(name string, mode *bugst.Mode) (bugst.Port, error) {
			gotName, gotMode = name, mode
			return fp, nil
		},
		func(d time.Duration) { slept = d },
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if gotName != "/dev/ttyS0" || p.Name() != "/dev/ttyS0" {
		t.Fatalf("unexpected device %q", gotName)
	}
	if gotMode.BaudRate != 9600 || gotMode.DataBits != 8 || gotMode.Parity != bugst.NoParity || gotMode.StopBits != bugst.OneStopBit {
		t.Fatalf("expected 9600 8-N-1, got %+v", gotMode)
	}
	if fp.timeout != time.Second {
		t.Fatalf("expected default read timeout, got %s", fp.timeout)
	}
	if slept != 2*time.Second || fp.flushed != 1 {
		t.Fatalf("expected warm-up then flush, slept=%s flushed=%d", slept, fp.flushed)
	}
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := open(Config{Device: "/dev/nope"},
		func(string, *bugst.Mode) (bugst.Port, error) { return nil, errors.New("no such file") },
		func(time.Duration) {},
	)
	if !errors.Is(err, ErrPortAbsent) {
		t.Fatalf("expected ErrPortAbsent, got %v", err)
	}
}

func TestOpenClosesOnFlushFailure(t *testing.T) {
	fp := &fakePort{flushErr: errors.New("io")}
	_, err := open(Config{},
		func(string, *bugst.Mode) (bugst.Port, error) { return fp, nil },
		func(time.Duration) {},
	)
	if err == nil || !fp.closed {
		t.Fatalf("expected error and closed port, err=%v closed=%v", err, fp.closed)
	}
}
