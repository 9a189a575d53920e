// Package ads1115 reads single-ended channels of an ADS1115 ADC over I2C.
package ads1115

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ghalamif/frostline/internal/ports"
	"github.com/reef-pi/rpi/i2c"
)

const (
	regConversion = 0x00
	regConfig     = 0x01

	configOsSingle      uint16 = 0x8000
	configModeSingle    uint16 = 0x0100
	configDataRate128   uint16 = 0x0080
	configComparatorOff uint16 = 0x0003

	convTimeout  = 50 * time.Millisecond
	convPollWait = 500 * time.Microsecond
)

var gains = []struct {
	volts float64
	bits  uint16
}{
	{6.144, 0x0000},
	{4.096, 0x0200},
	{2.048, 0x0400},
	{1.024, 0x0600},
	{0.512, 0x0800},
	{0.256, 0x0A00},
}

// Bus is the register-level I2C access the converter needs. reef-pi's
// i2c.Bus satisfies it.
type Bus interface {
	ReadFromReg(addr, reg byte, value []byte) error
	WriteToReg(addr, reg byte, value []byte) error
	Close() error
}

type Config struct {
	Address        byte    `yaml:"address"`
	FullScaleVolts float64 `yaml:"full_scale_volts"`
}

func (c *Config) ApplyDefaults() {
	if c.Address == 0 {
		c.Address = 0x48
	}
	if c.FullScaleVolts == 0 {
		c.FullScaleVolts = 4.096
	}
}

var ErrConversionTimeout = errors.New("ads1115: conversion timeout")

// ADC owns the bus. Channels share it, so conversions are serialized.
type ADC struct {
	mu      sync.Mutex
	bus     Bus
	address byte
	gain    uint16
	fs      float64
}

// Open opens the default I2C bus and probes the converter's config register so
// a missing device is reported at startup.
func Open(cfg Config) (*ADC, error) {
	bus, err := i2c.New()
	if err != nil {
		return nil, fmt.Errorf("ads1115: open i2c bus: %w", err)
	}
	adc, err := New(bus, cfg)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	if err := adc.Probe(); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return adc, nil
}

func New(bus Bus, cfg Config) (*ADC, error) {
	cfg.ApplyDefaults()
	for _, g := range gains {
		if g.volts == cfg.FullScaleVolts {
			return &ADC{bus: bus, address: cfg.Address, gain: g.bits, fs: g.volts}, nil
		}
	}
	return nil, fmt.Errorf("ads1115: unsupported full scale %.3fV", cfg.FullScaleVolts)
}

func (a *ADC) Probe() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf := make([]byte, 2)
	if err := a.bus.ReadFromReg(a.address, regConfig, buf); err != nil {
		return fmt.Errorf("ads1115: no device at 0x%02X: %w", a.address, err)
	}
	return nil
}

// Channel returns single-ended input AINn.
func (a *ADC) Channel(n int) (*Channel, error) {
	if n < 0 || n > 3 {
		return nil, fmt.Errorf("ads1115: channel %d out of range", n)
	}
	return &Channel{adc: a, n: n, mux: 0x4000 | uint16(n)<<12}, nil
}

func (a *ADC) Close() error {
	return a.bus.Close()
}

func (a *ADC) convert(mux uint16) (int16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	config := configOsSingle | mux | a.gain | configModeSingle | configDataRate128 | configComparatorOff
	if err := a.bus.WriteToReg(a.address, regConfig, []byte{byte(config >> 8), byte(config)}); err != nil {
		return 0, fmt.Errorf("ads1115: write config: %w", err)
	}

	deadline := time.Now().Add(convTimeout)
	cfg := make([]byte, 2)
	for {
		if err := a.bus.ReadFromReg(a.address, regConfig, cfg); err != nil {
			return 0, fmt.Errorf("ads1115: read config: %w", err)
		}
		if binary.BigEndian.Uint16(cfg)&configOsSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, ErrConversionTimeout
		}
		time.Sleep(convPollWait)
	}

	b := make([]byte, 2)
	if err := a.bus.ReadFromReg(a.address, regConversion, b); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// Channel is one ADC input.
type Channel struct {
	adc *ADC
	n   int
	mux uint16
}

// Sample runs a single-shot conversion. Voltage is clamped to [0, full scale]
// since every input is single-ended.
func (c *Channel) Sample() (ports.AnalogSample, error) {
	raw, err := c.adc.convert(c.mux)
	if err != nil {
		return ports.AnalogSample{}, err
	}
	volts := float64(raw) / 32768.0 * c.adc.fs
	volts = math.Max(0, math.Min(volts, c.adc.fs))
	return ports.AnalogSample{Raw: float64(raw), Voltage: volts}, nil
}

func (c *Channel) Name() string { return fmt.Sprintf("AIN%d", c.n) }

var _ ports.AnalogInput = (*Channel)(nil)
var _ Bus = (i2c.Bus)(nil)
