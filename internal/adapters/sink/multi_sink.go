package sink

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

// MultiSink delivers each batch to every configured sink. A failure in any of
// them fails the batch so the WAL keeps it for replay; sinks must tolerate
// seeing a batch twice.
type MultiSink struct {
	sinks []ports.Sink
}

func NewMultiSink(sinks ...ports.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *MultiSink) WriteBatch(readings []*domain.SensorReading) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteBatch(readings); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds a connection.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

var _ ports.Sink = (*MultiSink)(nil)
