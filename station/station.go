package station

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/weatherstation/metrics"
	"github.com/alepar/weatherstation/sensors"
)

const loopTimingGauge = "sensors_loop_timing"

// DefaultSettle is the wait between triggering the secondary sensor and
// reading the whole set.
const DefaultSettle = 10 * time.Second

// Snapshot is the set of readings handed to relays, all from one iteration.
type Snapshot struct {
	Time       time.Time
	Barometric sensors.Reading
	Precision  sensors.Reading
	Secondary  sensors.Reading
}

// Relay pushes a snapshot somewhere outside the process.
type Relay interface {
	Name() string
	Send(snapshot Snapshot) error
}

type Options struct {
	// wait after triggering the secondary sensor, DefaultSettle if zero
	Settle time.Duration

	// end Run on the first read or relay error instead of logging it
	FailFast bool

	Relays []Relay
}

// Station sequences the three sensors. It is not safe for concurrent use,
// everything is driven from the goroutine calling Run.
type Station struct {
	barometric *Wrapper
	precision  *Wrapper
	secondary  *Wrapper

	difference  *Difference
	loopTiming  prometheus.Gauge
	relayErrors *prometheus.CounterVec

	relays   []Relay
	settle   time.Duration
	failFast bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New registers all station gauges with sink. barometric is the pressure
// sensor, precision the temperature-only one and secondary the sensor that
// is triggered ahead of the settle wait.
func New(sink *metrics.Sink, barometric, precision sensors.Sensor, secondary sensors.TriggeredSensor, opts Options) *Station {
	stale := sink.GaugeVec("sensors_stale", "1 when the last read of the sensor failed and its gauges hold an older value", "sensor")
	readErrors := sink.CounterVec("sensors_read_errors_total", "Failed sensor reads", "sensor")

	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	return &Station{
		barometric:  newWrapper(sink, barometric, stale, readErrors),
		precision:   newWrapper(sink, precision, stale, readErrors),
		secondary:   newWrapper(sink, secondary, stale, readErrors),
		difference:  NewDifference(sink),
		loopTiming:  sink.Gauge(loopTimingGauge, "Duration of the last polling loop iteration (units: seconds)"),
		relayErrors: sink.CounterVec("sensors_relay_errors_total", "Failed relay sends", "relay"),
		relays:      opts.Relays,
		settle:      settle,
		failFast:    opts.FailFast,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Run polls until ctx is cancelled. It only returns an error in fail-fast mode.
func (s *Station) Run(ctx context.Context) error {
	log.Infof("polling %s, %s and %s every %s", s.barometric.Name(), s.precision.Name(), s.secondary.Name(), s.settle)
	for {
		err := s.RunOnce(ctx)
		switch errors.Cause(err) {
		case nil:
		case context.Canceled, context.DeadlineExceeded:
			log.Infof("stopped polling: %s", err)
			return nil
		default:
			return err
		}
	}
}

// RunOnce is one full trigger, settle, read, report and relay cycle.
func (s *Station) RunOnce(ctx context.Context) error {
	t0 := s.now()

	triggered := true
	if err := s.secondary.Trigger(); err != nil {
		triggered = false
		if err := s.failed(s.secondary, err); err != nil {
			return err
		}
	}

	if err := s.sleep(ctx, s.settle); err != nil {
		return err
	}

	if err := s.refresh(s.barometric); err != nil {
		return err
	}
	if err := s.refresh(s.precision); err != nil {
		return err
	}
	if triggered {
		if err := s.refresh(s.secondary); err != nil {
			return err
		}
	}

	barometric, barometricFresh := s.barometric.Last()
	precision, precisionFresh := s.precision.Last()
	if barometricFresh && precisionFresh {
		s.difference.Update(barometric.Temperature, precision.Temperature)
	}

	elapsed := s.now().Sub(t0)
	if elapsed < 0 {
		elapsed = 0
	}
	s.loopTiming.Set(elapsed.Seconds())
	log.Debugf("loop took %s", elapsed)

	return s.relay()
}

func (s *Station) refresh(w *Wrapper) error {
	if err := w.Refresh(); err != nil {
		return s.failed(w, err)
	}
	r, _ := w.Last()
	log.WithField("sensor", w.Name()).Debugf("read %.2fC %.2f%% %.5fatm", r.Temperature, r.Humidity, r.Pressure)
	return nil
}

func (s *Station) failed(w *Wrapper, err error) error {
	if s.failFast {
		return errors.Wrapf(err, "sensor %s", w.Name())
	}
	log.WithField("sensor", w.Name()).Errorf("failed to read from sensor: %s", err)
	return nil
}

func (s *Station) relay() error {
	if len(s.relays) == 0 {
		return nil
	}

	snapshot := Snapshot{Time: s.now()}
	var stale []string
	var fresh bool
	if snapshot.Barometric, fresh = s.barometric.Last(); !fresh {
		stale = append(stale, s.barometric.Name())
	}
	if snapshot.Precision, fresh = s.precision.Last(); !fresh {
		stale = append(stale, s.precision.Name())
	}
	if snapshot.Secondary, fresh = s.secondary.Last(); !fresh {
		stale = append(stale, s.secondary.Name())
	}
	if len(stale) > 0 {
		log.Warnf("not relaying, stale sensors: %s", strings.Join(stale, ", "))
		return nil
	}

	for _, r := range s.relays {
		if err := r.Send(snapshot); err != nil {
			s.relayErrors.WithLabelValues(r.Name()).Inc()
			if s.failFast {
				return errors.Wrapf(err, "relay %s", r.Name())
			}
			log.WithField("relay", r.Name()).Errorf("failed to relay readings: %s", err)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
