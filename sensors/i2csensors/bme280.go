package i2csensors

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/alepar/weatherstation/sensors"
)

// Primary BME280 address, SDO pulled low.
const BME280Addr uint16 = 0x76

// Pressure ± 100 Pa
// Relative Humidity ± 3 %
// Temperature ± 1 °C
type BME280 struct {
	dev envSensor
}

type envSensor interface {
	Sense(e *physic.Env) error
	Halt() error
}

// NewBME280 reads the chip id and calibration data. The device is left in
// forced mode, so every Read triggers one measurement and waits for it.
func NewBME280(bus i2c.Bus, addr uint16) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "bme280 handshake at %#x failed", addr)
	}
	log.Debugf("bme280 initialized: %s", dev)
	return &BME280{dev: dev}, nil
}

func (b *BME280) Name() string {
	return "bme280"
}

func (b *BME280) Fields() sensors.Field {
	return sensors.Humidity | sensors.Pressure
}

func (b *BME280) Read() (sensors.Reading, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return sensors.Reading{}, errors.Wrap(err, "bme280 measurement failed")
	}
	return refineEnv(e), nil
}

func (b *BME280) Halt() error {
	return b.dev.Halt()
}

func refineEnv(e physic.Env) sensors.Reading {
	pascals := float64(e.Pressure) / float64(physic.Pascal)
	return sensors.Reading{
		Humidity:    float32(float64(e.Humidity) / float64(physic.PercentRH)),
		Pressure:    sensors.PascalsToAtm(float32(pascals)),
		Temperature: float32(e.Temperature.Celsius()),
		Fields:      sensors.Humidity | sensors.Pressure,
	}
}
