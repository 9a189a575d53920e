// Package serial opens the UART the CO2 module is wired to.
package serial

import (
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/frostline/internal/ports"
	bugst "go.bug.st/serial"
)

// Config describes the port. The CO2 module speaks 9600 8-N-1.
type Config struct {
	Device      string        `yaml:"device"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	WarmUp      time.Duration `yaml:"warm_up"`
}

func (c *Config) ApplyDefaults() {
	if c.Device == "" {
		c.Device = "/dev/serial0"
	}
	if c.BaudRate <= 0 {
		c.BaudRate = 9600
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.WarmUp < 0 {
		c.WarmUp = 0
	}
}

// ErrPortAbsent means the device node does not exist or cannot be opened.
var ErrPortAbsent = errors.New("serial: port absent")

type opener func(name string, mode *bugst.Mode) (bugst.Port, error)

// Port adapts a go.bug.st port to ports.SerialPort.
type Port struct {
	bugst.Port
	name string
}

// Open opens and configures the port, waits for the sensor to settle, and
// discards anything buffered during warm-up.
func Open(cfg Config) (*Port, error) {
	return open(cfg, bugst.Open, time.Sleep)
}

func open(cfg Config, openFn opener, sleep func(time.Duration)) (*Port, error) {
	cfg.ApplyDefaults()
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	p, err := openFn(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortAbsent, cfg.Device, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: set read timeout on %s: %w", cfg.Device, err)
	}

	if cfg.WarmUp > 0 {
		sleep(cfg.WarmUp)
	}
	if err := p.ResetInputBuffer(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: flush %s: %w", cfg.Device, err)
	}
	return &Port{Port: p, name: cfg.Device}, nil
}

func (p *Port) Name() string { return p.name }

var _ ports.SerialPort = (*Port)(nil)
