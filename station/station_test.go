package station

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/weatherstation/metrics"
	"github.com/alepar/weatherstation/sensors"
)

type fakeSensor struct {
	name    string
	fields  sensors.Field
	reading sensors.Reading
	err     error

	triggerErr error
	events     *[]string
}

func (f *fakeSensor) Name() string          { return f.name }
func (f *fakeSensor) Fields() sensors.Field { return f.fields }

func (f *fakeSensor) Read() (sensors.Reading, error) {
	*f.events = append(*f.events, "read "+f.name)
	return f.reading, f.err
}

func (f *fakeSensor) Trigger() error {
	*f.events = append(*f.events, "trigger "+f.name)
	return f.triggerErr
}

type fakeRelay struct {
	sent []Snapshot
	err  error
}

func (f *fakeRelay) Name() string { return "fake" }

func (f *fakeRelay) Send(s Snapshot) error {
	f.sent = append(f.sent, s)
	return f.err
}

type fixture struct {
	station *Station
	events  []string
	clock   time.Time

	bme, mcp, sht *fakeSensor
	relay         *fakeRelay
}

func newFixture(t *testing.T, failFast bool) *fixture {
	f := &fixture{
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		relay: &fakeRelay{},
	}
	f.bme = &fakeSensor{
		name:    "bme280",
		fields:  sensors.Humidity | sensors.Pressure,
		reading: sensors.Reading{Humidity: 40, Pressure: 1.0, Temperature: 21.3, Fields: sensors.Humidity | sensors.Pressure},
		events:  &f.events,
	}
	f.mcp = &fakeSensor{
		name:    "mcp9808",
		reading: sensors.Reading{Temperature: 22.0},
		events:  &f.events,
	}
	f.sht = &fakeSensor{
		name:    "sht31",
		fields:  sensors.Humidity,
		reading: sensors.Reading{Humidity: 45.2, Temperature: 23.1, Fields: sensors.Humidity},
		events:  &f.events,
	}

	f.station = New(metrics.NewSink(), f.bme, f.mcp, f.sht, Options{
		FailFast: failFast,
		Relays:   []Relay{f.relay},
	})
	f.station.now = func() time.Time { return f.clock }
	f.station.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.events = append(f.events, "sleep "+d.String())
		f.clock = f.clock.Add(d)
		return nil
	}
	return f
}

func TestRunOnceSequence(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.station.RunOnce(context.Background()))

	assert.Equal(t, []string{
		"trigger sht31",
		"sleep 10s",
		"read bme280",
		"read mcp9808",
		"read sht31",
	}, f.events)
}

func TestRunOnceReportsGauges(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.station.RunOnce(context.Background()))

	s := f.station
	assert.InDelta(t, 40, testutil.ToFloat64(s.barometric.humidity), 1e-6)
	assert.InDelta(t, 1.0, testutil.ToFloat64(s.barometric.pressure), 1e-6)
	assert.InDelta(t, 21.3, testutil.ToFloat64(s.barometric.temperature), 1e-5)
	assert.InDelta(t, 70.34, testutil.ToFloat64(s.barometric.fahrenheit), 1e-4)

	assert.Nil(t, s.precision.humidity)
	assert.Nil(t, s.precision.pressure)
	assert.InDelta(t, 22.0, testutil.ToFloat64(s.precision.temperature), 1e-6)
	assert.InDelta(t, 71.6, testutil.ToFloat64(s.precision.fahrenheit), 1e-4)

	assert.Nil(t, s.secondary.pressure)
	assert.InDelta(t, 45.2, testutil.ToFloat64(s.secondary.humidity), 1e-5)
	assert.InDelta(t, 23.1, testutil.ToFloat64(s.secondary.temperature), 1e-5)
	assert.InDelta(t, 73.58, testutil.ToFloat64(s.secondary.fahrenheit), 1e-4)

	assert.InDelta(t, -0.7, testutil.ToFloat64(s.difference.gauge), 1e-5)
	assert.Equal(t, 10.0, testutil.ToFloat64(s.loopTiming))

	for _, w := range []*Wrapper{s.barometric, s.precision, s.secondary} {
		assert.Equal(t, 0.0, testutil.ToFloat64(w.stale), w.Name())
		assert.Equal(t, 0.0, testutil.ToFloat64(w.readErrors), w.Name())
	}
}

func TestRunOnceRelaysSnapshot(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.station.RunOnce(context.Background()))

	require.Len(t, f.relay.sent, 1)
	snap := f.relay.sent[0]
	assert.Equal(t, f.bme.reading, snap.Barometric)
	assert.Equal(t, f.mcp.reading, snap.Precision)
	assert.Equal(t, f.sht.reading, snap.Secondary)
	assert.Equal(t, f.clock, snap.Time)
}

func TestReadFailureKeepsLastGoodValue(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.station.RunOnce(context.Background()))

	f.mcp.err = errors.New("i2c nack")
	f.mcp.reading = sensors.Reading{Temperature: -100}
	f.bme.reading.Temperature = 25
	require.NoError(t, f.station.RunOnce(context.Background()))

	s := f.station
	assert.InDelta(t, 22.0, testutil.ToFloat64(s.precision.temperature), 1e-6)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.precision.stale))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.precision.readErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.barometric.stale))
	assert.InDelta(t, 25.0, testutil.ToFloat64(s.barometric.temperature), 1e-6)

	// difference still holds the first iteration's value
	assert.InDelta(t, -0.7, testutil.ToFloat64(s.difference.gauge), 1e-5)
	assert.Len(t, f.relay.sent, 1, "stale readings must not be relayed")

	f.mcp.err = nil
	f.mcp.reading = sensors.Reading{Temperature: 24}
	require.NoError(t, f.station.RunOnce(context.Background()))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.precision.stale))
	assert.InDelta(t, 1.0, testutil.ToFloat64(s.difference.gauge), 1e-6)
	assert.Len(t, f.relay.sent, 2)
}

func TestTriggerFailureSkipsSecondaryRead(t *testing.T) {
	f := newFixture(t, false)
	f.sht.triggerErr = errors.New("bus busy")

	require.NoError(t, f.station.RunOnce(context.Background()))

	assert.NotContains(t, f.events, "read sht31")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.station.secondary.stale))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.station.secondary.readErrors))
	assert.Empty(t, f.relay.sent)
}

func TestFailFastStopsOnReadError(t *testing.T) {
	f := newFixture(t, true)
	cause := errors.New("i2c nack")
	f.bme.err = cause

	err := f.station.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, cause, errors.Cause(err))
	assert.Contains(t, err.Error(), "sensor bme280")
	assert.NotContains(t, f.events, "read mcp9808")
}

func TestRelayFailureIsCounted(t *testing.T) {
	f := newFixture(t, false)
	f.relay.err = errors.New("connection refused")

	require.NoError(t, f.station.RunOnce(context.Background()))
	require.NoError(t, f.station.RunOnce(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.station.relayErrors.WithLabelValues("fake")))

	f = newFixture(t, true)
	f.relay.err = errors.New("connection refused")
	err := f.station.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay fake")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	f.station.relays = []Relay{relayFunc(func(Snapshot) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	})}

	require.NoError(t, f.station.Run(ctx))
	assert.Equal(t, 3, calls)
}

func TestLoopTimingNeverNegative(t *testing.T) {
	f := newFixture(t, false)
	f.station.sleep = func(context.Context, time.Duration) error {
		// wall clock stepped backwards during the wait
		f.clock = f.clock.Add(-time.Minute)
		return nil
	}

	require.NoError(t, f.station.RunOnce(context.Background()))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.station.loopTiming))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, sleepContext(ctx, time.Hour))
}

type relayFunc func(Snapshot) error

func (f relayFunc) Name() string          { return "func" }
func (f relayFunc) Send(s Snapshot) error { return f(s) }
