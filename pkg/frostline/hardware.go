package frostline

import (
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/ghalamif/frostline/internal/adapters/ads1115"
	"github.com/ghalamif/frostline/internal/adapters/gpio"
	"github.com/ghalamif/frostline/internal/adapters/serial"
	"github.com/ghalamif/frostline/internal/analog"
	"github.com/ghalamif/frostline/internal/mhz19"
	"github.com/ghalamif/frostline/internal/poller"
	"github.com/ghalamif/frostline/internal/ports"
)

// OpenHardware opens every enabled sensor. A sensor that fails to open is
// logged and left out of the returned Hardware; the poller then reports it
// absent for the whole process lifetime. The returned closer releases the
// handles that did open.
func OpenHardware(cfg *Config, obs Observability) (Hardware, io.Closer) {
	var (
		hw      Hardware
		closers closerList
	)

	if !cfg.CO2.Disabled {
		port, err := serial.Open(cfg.CO2.Serial)
		if err != nil {
			obs.LogError("co2_open_failed", err, ports.Field{Key: "device", Value: cfg.CO2.Serial.Device})
		} else {
			sensor := mhz19.NewSensor(port, cfg.ChecksumPolicy(), cfg.CO2.Settle)
			hw.CO2 = sensor
			closers = append(closers, sensor)
		}
	}

	if !cfg.ADC.Disabled {
		adc, err := ads1115.Open(cfg.ADC.Device)
		if err != nil {
			obs.LogError("adc_open_failed", err, ports.Field{Key: "address", Value: cfg.ADC.Device.Address})
		} else {
			closers = append(closers, adc)
		}
		for _, chCfg := range cfg.ADC.Channels {
			in := poller.GasInput{Channel: chCfg.Channel}
			if adc != nil {
				ch, err := adc.Channel(chCfg.Input)
				if err != nil {
					obs.LogError("adc_channel_failed", err, ports.Field{Key: "channel", Value: string(chCfg.Channel)})
				} else {
					in.Input = ch
				}
			}
			hw.Gas = append(hw.Gas, in)
		}
	}

	if !cfg.Door.Disabled {
		door, err := gpio.OpenDoor(cfg.Door.Line)
		if err != nil {
			obs.LogError("door_open_failed", err,
				ports.Field{Key: "chip", Value: cfg.Door.Line.Chip},
				ports.Field{Key: "line", Value: cfg.Door.Line.Line},
			)
		} else {
			hw.Door = door
			closers = append(closers, door)
		}
	}

	return hw, closers
}

// NewPoller builds the telemetry poller from configuration. An empty
// poller.source_id is replaced by a random instance id.
func NewPoller(cfg *Config, hw Hardware, obs Observability) (*Poller, error) {
	reader, err := analog.NewReader(cfg.CalibrationTable())
	if err != nil {
		return nil, err
	}
	if cfg.Poller.SourceID == "" {
		cfg.Poller.SourceID = uuid.NewString()
	}
	return poller.New(poller.Config{
		Interval:       cfg.Poller.Interval,
		SubReadTimeout: cfg.Poller.SubReadTimeout,
		CO2Retries:     cfg.CO2.Retries,
		CO2RetryDelay:  cfg.CO2.RetryDelay,
		Samples:        cfg.ADC.Samples,
		SampleSpacing:  cfg.ADC.SampleSpacing,
		SourceID:       cfg.Poller.SourceID,
	}, hw, reader, cfg.Thresholds, obs), nil
}

// closerList closes in reverse order of opening and joins the errors.
type closerList []io.Closer

func (c closerList) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
