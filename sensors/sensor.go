package sensors

// Field marks an optional quantity a device supplies in addition to temperature.
type Field uint8

const (
	Humidity Field = 1 << iota
	Pressure
)

// Has reports whether all of the given fields are set.
func (f Field) Has(other Field) bool {
	return f&other == other
}

type Sensor interface {
	// short model name, used as metric suffix and log field, e.g. "bme280"
	Name() string

	// optional fields this device fills in on every Read
	Fields() Field

	Read() (Reading, error)
}

// TriggeredSensor is a device that needs a measurement request and a
// settling delay before Read can return a fresh value.
type TriggeredSensor interface {
	Sensor
	Trigger() error
}

type Reading struct {
	// units: % of relative Humidity, valid when Fields has Humidity
	Humidity float32

	// units: atm, valid when Fields has Pressure
	Pressure float32

	// units: degrees Celsius
	Temperature float32

	Fields Field
}

// units: degrees Fahrenheit
func (r Reading) Fahrenheit() float32 {
	return CelsiusToFahrenheit(r.Temperature)
}

// InHg returns the pressure in inches of mercury.
func (r Reading) InHg() float32 {
	return AtmToInHg(r.Pressure)
}
