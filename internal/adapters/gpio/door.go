// Package gpio reads the freezer door reed switch through the GPIO character
// device.
package gpio

import (
	"fmt"

	"github.com/ghalamif/frostline/internal/ports"
	"github.com/warthog618/go-gpiocdev"
)

type Config struct {
	Chip string `yaml:"chip"`
	// Line is the BCM offset; 0 selects the default reed switch line 18.
	Line int `yaml:"line"`
	// OpenLevel is the logical level that means the door is open: "high" or "low".
	OpenLevel string `yaml:"open_level"`
}

func (c *Config) ApplyDefaults() {
	if c.Chip == "" {
		c.Chip = "gpiochip0"
	}
	if c.Line == 0 {
		c.Line = 18
	}
	if c.OpenLevel == "" {
		c.OpenLevel = "high"
	}
}

func (c Config) Validate() error {
	if c.Line < 0 {
		return fmt.Errorf("gpio: line must be >= 0")
	}
	if c.OpenLevel != "high" && c.OpenLevel != "low" {
		return fmt.Errorf("gpio: open_level must be high or low, got %q", c.OpenLevel)
	}
	return nil
}

type line interface {
	Value() (int, error)
	Close() error
}

// Door is a pulled-up input line.
type Door struct {
	l         line
	openValue int
}

func OpenDoor(cfg Config) (*Door, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithConsumer("frostline-door"),
	)
	if err != nil {
		return nil, fmt.Errorf("gpio: request %s line %d: %w", cfg.Chip, cfg.Line, err)
	}
	return newDoor(l, cfg.OpenLevel), nil
}

func newDoor(l line, openLevel string) *Door {
	d := &Door{l: l, openValue: 1}
	if openLevel == "low" {
		d.openValue = 0
	}
	return d
}

// Read reports true when the door is open.
func (d *Door) Read() (bool, error) {
	v, err := d.l.Value()
	if err != nil {
		return false, fmt.Errorf("gpio: read door: %w", err)
	}
	return v == d.openValue, nil
}

func (d *Door) Close() error {
	return d.l.Close()
}

var _ ports.DigitalInput = (*Door)(nil)
