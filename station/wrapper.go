package station

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alepar/weatherstation/metrics"
	"github.com/alepar/weatherstation/sensors"
)

// Wrapper owns one sensor and the gauges its readings are published to.
// Gauges always hold the last good reading; a failed read flags the
// wrapper stale instead of overwriting them.
type Wrapper struct {
	sensor sensors.Sensor

	last  sensors.Reading
	fresh bool

	humidity    prometheus.Gauge
	pressure    prometheus.Gauge
	temperature prometheus.Gauge
	fahrenheit  prometheus.Gauge

	stale      prometheus.Gauge
	readErrors prometheus.Counter
}

func newWrapper(sink *metrics.Sink, s sensors.Sensor, stale *prometheus.GaugeVec, readErrors *prometheus.CounterVec) *Wrapper {
	name := s.Name()
	w := &Wrapper{
		sensor:      s,
		temperature: sink.Gauge("sensors_temperature_celsius_"+name, fmt.Sprintf("Temperature from %s (units: degrees Celsius)", name)),
		fahrenheit:  sink.Gauge("sensors_temperature_fahrenheit_"+name, fmt.Sprintf("Temperature from %s (units: degrees Fahrenheit)", name)),
		stale:       stale.WithLabelValues(name),
		readErrors:  readErrors.WithLabelValues(name),
	}
	if s.Fields().Has(sensors.Humidity) {
		w.humidity = sink.Gauge("sensors_humidity_percent_"+name, fmt.Sprintf("Humidity from %s (units: %% of relative Humidity)", name))
	}
	if s.Fields().Has(sensors.Pressure) {
		w.pressure = sink.Gauge("sensors_pressure_atm_"+name, fmt.Sprintf("Atmospheric Pressure from %s (units: atm)", name))
	}
	// nothing has been read yet
	w.stale.Set(1)
	return w
}

func (w *Wrapper) Name() string {
	return w.sensor.Name()
}

// Trigger starts a measurement on sensors that need one ahead of Read.
func (w *Wrapper) Trigger() error {
	ts, ok := w.sensor.(sensors.TriggeredSensor)
	if !ok {
		return nil
	}
	if err := ts.Trigger(); err != nil {
		w.markStale()
		return err
	}
	return nil
}

// Refresh reads the sensor and reports the result.
func (w *Wrapper) Refresh() error {
	r, err := w.sensor.Read()
	if err != nil {
		w.markStale()
		return err
	}

	w.last = r
	w.fresh = true
	w.stale.Set(0)
	w.report()
	return nil
}

// Last returns the last good reading and whether it came from the most
// recent Refresh.
func (w *Wrapper) Last() (sensors.Reading, bool) {
	return w.last, w.fresh
}

func (w *Wrapper) markStale() {
	w.fresh = false
	w.stale.Set(1)
	w.readErrors.Inc()
}

func (w *Wrapper) report() {
	if w.humidity != nil {
		w.humidity.Set(float64(w.last.Humidity))
	}
	if w.pressure != nil {
		w.pressure.Set(float64(w.last.Pressure))
	}
	w.temperature.Set(float64(w.last.Temperature))
	w.fahrenheit.Set(float64(w.last.Fahrenheit()))
}
