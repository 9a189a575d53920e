// Package poller runs the telemetry polling cycle: CO2 over the serial
// transaction with bounded retries, averaged analog gas channels, and the door
// switch, assembled into one classified SensorReading per cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/analog"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/mhz19"
	"github.com/ghalamif/frostline/internal/ports"
)

var (
	ErrSubReadTimeout = errors.New("poller: sub-read timed out")
	ErrChannelBusy    = errors.New("poller: channel still busy with a stalled read")
)

// CO2Reader performs one request/response transaction. *mhz19.Sensor satisfies it.
type CO2Reader interface {
	Read() (mhz19.Result, error)
}

// GasInput binds an ADC input to the calibration channel it feeds.
type GasInput struct {
	Channel analog.Channel
	Input   ports.AnalogInput
}

// Hardware is what the poller owns for its lifetime. A nil field, or a
// GasInput with a nil Input, is hardware that was absent at startup; it is
// never retried and always contributes an absent field.
type Hardware struct {
	CO2  CO2Reader
	Gas  []GasInput
	Door ports.DigitalInput
}

type Config struct {
	Interval       time.Duration
	SubReadTimeout time.Duration
	CO2Retries     int
	CO2RetryDelay  time.Duration
	Samples        int
	SampleSpacing  time.Duration
	SourceID       string
}

func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.SubReadTimeout <= 0 {
		c.SubReadTimeout = 5 * time.Second
	}
	if c.CO2Retries <= 0 {
		c.CO2Retries = 3
	}
	if c.CO2RetryDelay < 0 {
		c.CO2RetryDelay = 0
	}
	if c.Samples <= 0 {
		c.Samples = 5
	}
	if c.SampleSpacing < 0 {
		c.SampleSpacing = 0
	}
}

// Stats counts cycles and CO2 outcomes since start.
type Stats struct {
	Cycles       uint64
	CO2Successes uint64
	CO2Failures  uint64
}

// SuccessRate is the share of cycles with a CO2 value, in percent.
func (s Stats) SuccessRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.CO2Successes) / float64(s.Cycles) * 100
}

type channel struct {
	name string
	busy atomic.Bool
}

// Poller is the TelemetryPoller. Poll is single-threaded: callers must not run
// two cycles at once. Start runs the cycle loop on its own goroutine.
type Poller struct {
	cfg        Config
	hw         Hardware
	reader     *analog.Reader
	thresholds airquality.Thresholds
	obs        ports.Observability

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	co2Ch  channel
	gasChs []*channel
	doorCh channel

	seq          atomic.Uint64
	cycles       atomic.Uint64
	co2Successes atomic.Uint64
	co2Failures  atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(cfg Config, hw Hardware, reader *analog.Reader, th airquality.Thresholds, obs ports.Observability) *Poller {
	cfg.ApplyDefaults()
	p := &Poller{
		cfg:        cfg,
		hw:         hw,
		reader:     reader,
		thresholds: th,
		obs:        obs,
		now:        time.Now,
		sleep:      sleepCtx,
		co2Ch:      channel{name: "co2"},
		doorCh:     channel{name: "door"},
	}
	for _, g := range hw.Gas {
		p.gasChs = append(p.gasChs, &channel{name: string(g.Channel)})
	}

	if hw.CO2 == nil {
		obs.LogWarn("channel_disabled", ports.Field{Key: "channel", Value: "co2"})
	}
	for _, g := range hw.Gas {
		if g.Input == nil {
			obs.LogWarn("channel_disabled", ports.Field{Key: "channel", Value: string(g.Channel)})
		}
	}
	if hw.Door == nil {
		obs.LogWarn("channel_disabled", ports.Field{Key: "channel", Value: "door"})
	}
	return p
}

// Start begins polling immediately and then every Interval, sending each
// reading to out. Cancellation is observed at the sleep and between sub-reads.
func (p *Poller) Start(out chan<- *domain.SensorReading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("poller already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true

	p.wg.Add(1)
	go p.loop(ctx, out)
	return nil
}

func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.started = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	return nil
}

func (p *Poller) loop(ctx context.Context, out chan<- *domain.SensorReading) {
	defer p.wg.Done()
	for {
		r := p.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case out <- r:
		}
		if !p.sleep(ctx, p.cfg.Interval) {
			return
		}
	}
}

// Poll runs one full cycle and always returns a reading. Faulty or absent
// channels are left nil; the worst case is a reading with every field absent.
func (p *Poller) Poll(ctx context.Context) *domain.SensorReading {
	r := &domain.SensorReading{
		Seq:      p.seq.Add(1),
		SourceID: p.cfg.SourceID,
	}

	if ppm, ok := p.readCO2(ctx); ok {
		r.CO2PPM = domain.Uint16(ppm)
		p.co2Successes.Add(1)
		p.obs.SetGauge("frostline_co2_ppm", float64(ppm))
	} else {
		p.co2Failures.Add(1)
	}

	for i, g := range p.hw.Gas {
		if ctx.Err() != nil {
			break
		}
		ppm, ok := p.readGas(g, p.gasChs[i])
		if !ok {
			continue
		}
		switch g.Channel {
		case analog.Ammonia:
			r.AmmoniaPPM = domain.Float64(ppm)
			p.obs.SetGauge("frostline_ammonia_ppm", ppm)
		case analog.H2S:
			r.H2SPPM = domain.Float64(ppm)
			p.obs.SetGauge("frostline_h2s_ppm", ppm)
		}
	}

	if ctx.Err() == nil {
		if open, ok := p.readDoor(); ok {
			r.DoorOpen = domain.Bool(open)
			p.obs.SetGauge("frostline_door_open", boolGauge(open))
		}
	}

	r.Timestamp = p.now()
	r.AirQuality = airquality.Classify(r, p.thresholds)
	p.cycles.Add(1)
	return r
}

func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:       p.cycles.Load(),
		CO2Successes: p.co2Successes.Load(),
		CO2Failures:  p.co2Failures.Load(),
	}
}

func (p *Poller) readCO2(ctx context.Context) (uint16, bool) {
	if p.hw.CO2 == nil {
		return 0, false
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.CO2Retries; attempt++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if attempt > 1 {
			p.obs.IncCounter("frostline_co2_retries_total", 1)
			if !p.sleep(ctx, p.cfg.CO2RetryDelay) {
				return 0, false
			}
		}

		res, err := within(p.cfg.SubReadTimeout, &p.co2Ch.busy, p.hw.CO2.Read)
		if err != nil {
			lastErr = err
			continue
		}
		if !res.ChecksumOK {
			p.obs.IncCounter("frostline_co2_checksum_anomalies_total", 1)
			p.obs.LogWarn("co2_checksum_mismatch",
				ports.Field{Key: "ppm", Value: res.PPM},
				ports.Field{Key: "attempt", Value: attempt},
			)
		}
		return res.PPM, true
	}

	p.obs.IncCounter("frostline_channel_absent_total", 1)
	p.obs.LogError("co2_read_failed", lastErr, ports.Field{Key: "attempts", Value: p.cfg.CO2Retries})
	return 0, false
}

func (p *Poller) readGas(g GasInput, ch *channel) (float64, bool) {
	if g.Input == nil || p.reader == nil {
		return 0, false
	}

	sample, err := within(p.cfg.SubReadTimeout, &ch.busy, func() (ports.AnalogSample, error) {
		samples := make([]ports.AnalogSample, 0, p.cfg.Samples)
		for i := 0; i < p.cfg.Samples; i++ {
			if i > 0 && p.cfg.SampleSpacing > 0 {
				time.Sleep(p.cfg.SampleSpacing)
			}
			s, err := g.Input.Sample()
			if err != nil {
				return ports.AnalogSample{}, err
			}
			samples = append(samples, s)
		}
		return analog.Average(samples), nil
	})
	if err != nil {
		p.obs.IncCounter("frostline_channel_absent_total", 1)
		p.obs.LogError("analog_read_failed", err,
			ports.Field{Key: "channel", Value: ch.name},
			ports.Field{Key: "input", Value: g.Input.Name()},
		)
		return 0, false
	}
	return p.reader.Read(g.Channel, sample), true
}

func (p *Poller) readDoor() (bool, bool) {
	if p.hw.Door == nil {
		return false, false
	}
	open, err := within(p.cfg.SubReadTimeout, &p.doorCh.busy, p.hw.Door.Read)
	if err != nil {
		p.obs.IncCounter("frostline_channel_absent_total", 1)
		p.obs.LogError("door_read_failed", err)
		return false, false
	}
	return open, true
}

// within runs fn on its own goroutine and gives up after d. A read that
// outlives its timeout keeps the channel marked busy until it returns, so the
// hardware is never driven by two reads at once.
func within[T any](d time.Duration, busy *atomic.Bool, fn func() (T, error)) (T, error) {
	var zero T
	if !busy.CompareAndSwap(false, true) {
		return zero, ErrChannelBusy
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		busy.Store(false)
		done <- result{v: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.v, res.err
	case <-timer.C:
		return zero, ErrSubReadTimeout
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ ports.Collector = (*Poller)(nil)
