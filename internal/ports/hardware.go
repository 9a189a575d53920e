package ports

// SerialPort is the subset of a UART handle used by the CO2 transaction. Read
// returns (0, nil) when the configured read timeout elapses without data.
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
}

// AnalogSample is one ADC conversion: the raw code and the derived voltage.
type AnalogSample struct {
	Raw     float64
	Voltage float64
}

// AnalogInput is one ADC channel.
type AnalogInput interface {
	Sample() (AnalogSample, error)
	Name() string
}

// DigitalInput is a single logical GPIO signal.
type DigitalInput interface {
	Read() (bool, error)
	Close() error
}
