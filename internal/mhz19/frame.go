// Package mhz19 speaks the 9-byte command/response protocol of MH-Z19-family
// CO2 modules.
package mhz19

import (
	"errors"
	"fmt"
	"strings"
)

const (
	FrameLen = 9

	frameStart   byte = 0xFF
	sensorAddr   byte = 0x01
	cmdReadCO2   byte = 0x86
	checksumByte      = FrameLen - 1
)

var (
	ErrShortFrame       = errors.New("mhz19: short frame")
	ErrBadHeader        = errors.New("mhz19: bad header")
	ErrChecksumMismatch = errors.New("mhz19: checksum mismatch")
)

// ChecksumError carries both checksums. The concentration bytes were still
// parsed, so callers can decide whether to use them.
type ChecksumError struct {
	Want byte
	Got  byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("mhz19: checksum mismatch: computed 0x%02X, frame carries 0x%02X", e.Want, e.Got)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// Checksum sums bytes 1..7 mod 256, complements the sum and adds one.
func Checksum(frame []byte) byte {
	var sum byte
	for i := 1; i < checksumByte && i < len(frame); i++ {
		sum += frame[i]
	}
	return ^sum + 1
}

// EncodeReadRequest returns the fixed "read CO2 concentration" command.
func EncodeReadRequest() [FrameLen]byte {
	frame := [FrameLen]byte{frameStart, sensorAddr, cmdReadCO2}
	frame[checksumByte] = Checksum(frame[:])
	return frame
}

// Decode validates a response frame and extracts the concentration. On a
// checksum mismatch it returns the parsed concentration together with a
// *ChecksumError; every other failure returns zero.
func Decode(frame []byte) (uint16, error) {
	if len(frame) < FrameLen {
		return 0, fmt.Errorf("%w: got %d of %d bytes", ErrShortFrame, len(frame), FrameLen)
	}
	if frame[0] != frameStart || frame[1] != cmdReadCO2 {
		return 0, fmt.Errorf("%w: % X", ErrBadHeader, frame[:2])
	}
	ppm := uint16(frame[2])<<8 | uint16(frame[3])
	if want := Checksum(frame); want != frame[checksumByte] {
		return ppm, &ChecksumError{Want: want, Got: frame[checksumByte]}
	}
	return ppm, nil
}

// ChecksumPolicy decides what a checksum mismatch means.
type ChecksumPolicy string

const (
	// Strict treats a mismatch as a transient fault.
	Strict ChecksumPolicy = "strict"
	// Lenient accepts the payload and only flags the anomaly.
	Lenient ChecksumPolicy = "lenient"
)

func ParseChecksumPolicy(s string) (ChecksumPolicy, error) {
	switch ChecksumPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case Strict:
		return Strict, nil
	case Lenient, "":
		return Lenient, nil
	default:
		return "", fmt.Errorf("unknown checksum policy %q (want strict or lenient)", s)
	}
}

// Result is a decoded concentration plus whether its checksum verified.
type Result struct {
	PPM        uint16
	ChecksumOK bool
}

// Decoder applies a ChecksumPolicy on top of Decode.
type Decoder struct {
	Policy ChecksumPolicy
}

func (d Decoder) Decode(frame []byte) (Result, error) {
	ppm, err := Decode(frame)
	if err == nil {
		return Result{PPM: ppm, ChecksumOK: true}, nil
	}
	if errors.Is(err, ErrChecksumMismatch) && d.Policy != Strict {
		return Result{PPM: ppm}, nil
	}
	return Result{}, err
}
