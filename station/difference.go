package station

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alepar/weatherstation/metrics"
)

const temperatureDifferenceGauge = "sensors_temperature_difference_C"

// Difference publishes a minus b, sign preserved.
type Difference struct {
	gauge prometheus.Gauge
}

func NewDifference(sink *metrics.Sink) *Difference {
	return &Difference{
		gauge: sink.Gauge(temperatureDifferenceGauge, "Temperature of bme280 minus temperature of mcp9808 (units: degrees Celsius)"),
	}
}

func (d *Difference) Update(a, b float32) {
	d.gauge.Set(float64(a - b))
}
