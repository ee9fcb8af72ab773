package i2csensors

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"

	"github.com/alepar/weatherstation/sensors"
)

// Default SHT31 address, ADDR pin low.
const SHT31Addr uint16 = 0x44

// Worst case single shot conversion time at high repeatability is 15.5ms.
const SHT31Settle = 16 * time.Millisecond

var (
	sht31CmdSoftReset  = []byte{0x30, 0xa2}
	sht31CmdSingleHigh = []byte{0x24, 0x00}
)

var (
	ErrNotTriggered = errors.New("no measurement was triggered")
	ErrChecksum     = errors.New("checksum mismatch")
)

// MeasurementState tracks the two phase protocol of the SHT31.
type MeasurementState int

const (
	Idle MeasurementState = iota
	Triggered
	Ready
)

func (s MeasurementState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Triggered:
		return "triggered"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Relative Humidity ± 2 %
// Temperature ± 0.3 °C
type SHT31 struct {
	dev    *i2c.Dev
	settle time.Duration

	triggered   bool
	triggeredAt time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewSHT31 soft-resets the device. settle is the conversion time the device
// needs between Trigger and Read.
func NewSHT31(bus i2c.Bus, addr uint16, settle time.Duration) (*SHT31, error) {
	s := &SHT31{
		dev:    &i2c.Dev{Bus: bus, Addr: addr},
		settle: settle,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	if err := s.dev.Tx(sht31CmdSoftReset, nil); err != nil {
		return nil, errors.Wrapf(err, "sht31 soft reset at %#x failed", addr)
	}
	// reset takes at most 1.5ms
	s.sleep(2 * time.Millisecond)
	return s, nil
}

func (s *SHT31) Name() string {
	return "sht31"
}

func (s *SHT31) Fields() sensors.Field {
	return sensors.Humidity
}

func (s *SHT31) State() MeasurementState {
	if !s.triggered {
		return Idle
	}
	if s.now().Sub(s.triggeredAt) < s.settle {
		return Triggered
	}
	return Ready
}

// Trigger starts a single shot, high repeatability conversion.
// Triggering again restarts the settle period.
func (s *SHT31) Trigger() error {
	if err := s.dev.Tx(sht31CmdSingleHigh, nil); err != nil {
		s.triggered = false
		return errors.Wrap(err, "couldn't trigger sht31 measurement")
	}
	s.triggered = true
	s.triggeredAt = s.now()
	return nil
}

// Read fetches the result of the last Trigger, waiting out whatever is left
// of the settle period first. The device is Idle afterwards.
func (s *SHT31) Read() (sensors.Reading, error) {
	switch s.State() {
	case Idle:
		return sensors.Reading{}, ErrNotTriggered
	case Triggered:
		s.sleep(s.settle - s.now().Sub(s.triggeredAt))
	}
	s.triggered = false

	var r [6]byte
	if err := s.dev.Tx(nil, r[:]); err != nil {
		return sensors.Reading{}, errors.Wrap(err, "couldn't read sht31 measurement")
	}
	return decodeSHT31(r)
}

func decodeSHT31(r [6]byte) (sensors.Reading, error) {
	if crc8(r[0:2]) != r[2] {
		return sensors.Reading{}, errors.Wrap(ErrChecksum, "sht31 temperature")
	}
	if crc8(r[3:5]) != r[5] {
		return sensors.Reading{}, errors.Wrap(ErrChecksum, "sht31 humidity")
	}

	rawT := float32(uint16(r[0])<<8 | uint16(r[1]))
	rawRH := float32(uint16(r[3])<<8 | uint16(r[4]))
	return sensors.Reading{
		Temperature: -45 + 175*rawT/65535,
		Humidity:    100 * rawRH / 65535,
		Fields:      sensors.Humidity,
	}, nil
}

// crc8 as in the datasheet: polynomial 0x31, init 0xff, no reflection.
func crc8(data []byte) byte {
	crc := byte(0xff)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
