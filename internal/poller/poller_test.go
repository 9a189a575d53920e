package poller

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/frostline/internal/airquality"
	"github.com/ghalamif/frostline/internal/analog"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/mhz19"
	"github.com/ghalamif/frostline/internal/ports"
)

type co2Step struct {
	res mhz19.Result
	err error
}

type fakeCO2 struct {
	mu    sync.Mutex
	steps []co2Step
	calls int
}

func (f *fakeCO2) Read() (mhz19.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.steps) == 0 {
		return mhz19.Result{}, mhz19.ErrShortFrame
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.res, s.err
}

type fakeAnalog struct {
	name     string
	voltages []float64
	err      error
	idx      int
}

func (f *fakeAnalog) Sample() (ports.AnalogSample, error) {
	if f.err != nil {
		return ports.AnalogSample{}, f.err
	}
	v := f.voltages[f.idx%len(f.voltages)]
	f.idx++
	return ports.AnalogSample{Raw: v * 8000, Voltage: v}, nil
}

func (f *fakeAnalog) Name() string { return f.name }

type fakeDoor struct {
	open  bool
	block chan struct{}
	calls atomic.Int32
}

func (f *fakeDoor) Read() (bool, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.open, nil
}

func (f *fakeDoor) Close() error { return nil }

type stubObs struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
	events   []string
}

func newStubObs() *stubObs {
	return &stubObs{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func (s *stubObs) record(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, msg)
}

func (s *stubObs) LogInfo(msg string, _ ...ports.Field)              { s.record(msg) }
func (s *stubObs) LogWarn(msg string, _ ...ports.Field)              { s.record(msg) }
func (s *stubObs) LogError(msg string, _ error, _ ...ports.Field)    { s.record(msg) }
func (s *stubObs) LogCritical(msg string, _ error, _ ...ports.Field) { s.record(msg) }
func (s *stubObs) ObserveLatency(string, float64)                    {}

func (s *stubObs) IncCounter(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += v
}

func (s *stubObs) SetGauge(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = v
}

func (s *stubObs) counter(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

func (s *stubObs) saw(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == msg {
			return true
		}
	}
	return false
}

var fixedNow = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newTestPoller(t *testing.T, cfg Config, hw Hardware, obs *stubObs) *Poller {
	t.Helper()
	reader, err := analog.NewReader(analog.DefaultTable())
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	p := New(cfg, hw, reader, airquality.DefaultThresholds(), obs)
	p.now = func() time.Time { return fixedNow }
	p.sleep = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }
	return p
}

func TestPollRetriesTransientCO2Faults(t *testing.T) {
	co2 := &fakeCO2{steps: []co2Step{
		{err: mhz19.ErrShortFrame},
		{err: mhz19.ErrBadHeader},
		{res: mhz19.Result{PPM: 640, ChecksumOK: true}},
	}}
	obs := newStubObs()
	p := newTestPoller(t, Config{CO2Retries: 3}, Hardware{CO2: co2}, obs)

	r := p.Poll(context.Background())
	if r.CO2PPM == nil || *r.CO2PPM != 640 {
		t.Fatalf("expected co2 640, got %v", r.CO2PPM)
	}
	if co2.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", co2.calls)
	}
	if got := obs.counter("frostline_co2_retries_total"); got != 2 {
		t.Fatalf("expected 2 retries counted, got %v", got)
	}
	if !r.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected timestamp %s", r.Timestamp)
	}
}

func TestPollExhaustedRetriesLeavesCO2Absent(t *testing.T) {
	co2 := &fakeCO2{}
	obs := newStubObs()
	p := newTestPoller(t, Config{CO2Retries: 4}, Hardware{CO2: co2}, obs)

	r := p.Poll(context.Background())
	if r.CO2PPM != nil {
		t.Fatalf("expected absent co2, got %d", *r.CO2PPM)
	}
	if co2.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", co2.calls)
	}
	if !obs.saw("co2_read_failed") {
		t.Fatalf("expected co2_read_failed to be logged")
	}
	if r.AirQuality != domain.AirUnknown {
		t.Fatalf("expected unknown air quality, got %s", r.AirQuality)
	}
}

func TestPollLenientChecksumCountsAnomaly(t *testing.T) {
	co2 := &fakeCO2{steps: []co2Step{{res: mhz19.Result{PPM: 1200, ChecksumOK: false}}}}
	obs := newStubObs()
	p := newTestPoller(t, Config{}, Hardware{CO2: co2}, obs)

	r := p.Poll(context.Background())
	if r.CO2PPM == nil || *r.CO2PPM != 1200 {
		t.Fatalf("expected co2 1200, got %v", r.CO2PPM)
	}
	if r.AirQuality != domain.AirPoor {
		t.Fatalf("expected poor, got %s", r.AirQuality)
	}
	if obs.counter("frostline_co2_checksum_anomalies_total") != 1 || !obs.saw("co2_checksum_mismatch") {
		t.Fatalf("expected checksum anomaly to be recorded")
	}
}

func TestPollStrictChecksumIsRetried(t *testing.T) {
	mismatch := &mhz19.ChecksumError{Want: 0x8F, Got: 0x00}
	co2 := &fakeCO2{steps: []co2Step{
		{err: mismatch},
		{res: mhz19.Result{PPM: 500, ChecksumOK: true}},
	}}
	p := newTestPoller(t, Config{CO2Retries: 3}, Hardware{CO2: co2}, newStubObs())

	r := p.Poll(context.Background())
	if r.CO2PPM == nil || *r.CO2PPM != 500 || co2.calls != 2 {
		t.Fatalf("expected retry after strict mismatch, got co2=%v calls=%d", r.CO2PPM, co2.calls)
	}
}

func TestPollAbsentHardware(t *testing.T) {
	obs := newStubObs()
	p := newTestPoller(t, Config{}, Hardware{Gas: []GasInput{{Channel: analog.Ammonia}}}, obs)

	r := p.Poll(context.Background())
	if r.CO2PPM != nil || r.AmmoniaPPM != nil || r.H2SPPM != nil || r.DoorOpen != nil {
		t.Fatalf("expected every field absent, got %+v", r)
	}
	if r.AirQuality != domain.AirUnknown {
		t.Fatalf("expected unknown, got %s", r.AirQuality)
	}
	if !obs.saw("channel_disabled") {
		t.Fatalf("expected channel_disabled at construction")
	}
	if obs.counter("frostline_channel_absent_total") != 0 {
		t.Fatalf("disabled channels must not count as per-cycle failures")
	}
}

func TestPollAveragesAnalogSamples(t *testing.T) {
	nh3 := &fakeAnalog{name: "A0", voltages: []float64{0.10, 0.12, 0.14, 0.16, 0.18}}
	h2s := &fakeAnalog{name: "A1", voltages: []float64{0.05}}
	p := newTestPoller(t, Config{Samples: 5}, Hardware{Gas: []GasInput{
		{Channel: analog.Ammonia, Input: nh3},
		{Channel: analog.H2S, Input: h2s},
	}}, newStubObs())

	r := p.Poll(context.Background())
	if r.AmmoniaPPM == nil || math.Abs(*r.AmmoniaPPM-40) > 1e-9 {
		t.Fatalf("expected averaged ammonia 40 ppm, got %v", r.AmmoniaPPM)
	}
	if r.H2SPPM == nil || *r.H2SPPM != 0 {
		t.Fatalf("expected h2s below floor to read 0, got %v", r.H2SPPM)
	}
	if nh3.idx != 5 {
		t.Fatalf("expected 5 samples, got %d", nh3.idx)
	}
	if r.AirQuality != domain.AirPoor {
		t.Fatalf("expected ammonia breach to classify poor, got %s", r.AirQuality)
	}
}

func TestPollAnalogFailureIsAbsent(t *testing.T) {
	obs := newStubObs()
	bad := &fakeAnalog{name: "A1", err: errors.New("i2c nack")}
	p := newTestPoller(t, Config{}, Hardware{Gas: []GasInput{{Channel: analog.H2S, Input: bad}}}, obs)

	r := p.Poll(context.Background())
	if r.H2SPPM != nil {
		t.Fatalf("expected absent h2s, got %v", *r.H2SPPM)
	}
	if obs.counter("frostline_channel_absent_total") != 1 {
		t.Fatalf("expected absent channel to be counted")
	}
}

func TestPollStalledDoorDegradesToAbsent(t *testing.T) {
	door := &fakeDoor{open: true, block: make(chan struct{})}
	defer close(door.block)
	p := newTestPoller(t, Config{SubReadTimeout: 20 * time.Millisecond}, Hardware{Door: door}, newStubObs())

	r := p.Poll(context.Background())
	if r.DoorOpen != nil {
		t.Fatalf("expected stalled door to be absent")
	}

	r = p.Poll(context.Background())
	if r.DoorOpen != nil {
		t.Fatalf("expected busy door to stay absent")
	}
	if got := door.calls.Load(); got != 1 {
		t.Fatalf("expected no concurrent read while stalled, got %d calls", got)
	}
}

func TestPollDoorOpen(t *testing.T) {
	obs := newStubObs()
	p := newTestPoller(t, Config{}, Hardware{Door: &fakeDoor{open: true}}, obs)

	r := p.Poll(context.Background())
	if r.DoorOpen == nil || !*r.DoorOpen {
		t.Fatalf("expected door open")
	}
	if r.AirQuality != domain.AirUnknown {
		t.Fatalf("door state alone must not produce a gas label, got %s", r.AirQuality)
	}
	if obs.gauges["frostline_door_open"] != 1 {
		t.Fatalf("expected door gauge set")
	}
}

func TestPollCancelledSkipsRemainingSubReads(t *testing.T) {
	co2 := &fakeCO2{}
	door := &fakeDoor{}
	p := newTestPoller(t, Config{}, Hardware{CO2: co2, Door: door}, newStubObs())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := p.Poll(ctx)
	if co2.calls != 0 || door.calls.Load() != 0 {
		t.Fatalf("expected no hardware access after cancel")
	}
	if r.AirQuality != domain.AirUnknown {
		t.Fatalf("expected unknown, got %s", r.AirQuality)
	}
}

func TestStatsSuccessRate(t *testing.T) {
	co2 := &fakeCO2{steps: []co2Step{
		{res: mhz19.Result{PPM: 420, ChecksumOK: true}},
		{err: mhz19.ErrShortFrame},
	}}
	p := newTestPoller(t, Config{CO2Retries: 1}, Hardware{CO2: co2}, newStubObs())

	p.Poll(context.Background())
	p.Poll(context.Background())

	st := p.Stats()
	if st.Cycles != 2 || st.CO2Successes != 1 || st.CO2Failures != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.SuccessRate() != 50 {
		t.Fatalf("expected 50%%, got %v", st.SuccessRate())
	}
}

func TestStartStopEmitsReadings(t *testing.T) {
	co2 := &fakeCO2{steps: []co2Step{
		{res: mhz19.Result{PPM: 410, ChecksumOK: true}},
		{res: mhz19.Result{PPM: 420, ChecksumOK: true}},
	}}
	p := newTestPoller(t, Config{CO2Retries: 1}, Hardware{CO2: co2}, newStubObs())

	out := make(chan *domain.SensorReading, 4)
	if err := p.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(out); err == nil {
		t.Fatalf("expected second start to fail")
	}

	first := <-out
	second := <-out
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected sequential readings, got %d and %d", first.Seq, second.Seq)
	}
	if first.CO2PPM == nil || *first.CO2PPM != 410 {
		t.Fatalf("unexpected first reading %+v", first)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}
