package i2csensors

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"

	"github.com/alepar/weatherstation/sensors"
)

// Default MCP9808 address, A0..A2 tied low.
const MCP9808Addr uint16 = 0x18

const (
	mcp9808RegConfig  = 0x01
	mcp9808RegAmbient = 0x05

	mcp9808ConfigShutdown = 0x0100

	// 0.0625 °C per LSB at maximum resolution
	mcp9808Resolution = 0.0625
)

// Accuracy: Typical ±0.25°C /  Maximum ±0.5°C
type MCP9808 struct {
	dev *i2c.Dev
}

// NewMCP9808 switches the device to continuous conversion: the config
// register is read and written back with the shutdown bit cleared.
func NewMCP9808(bus i2c.Bus, addr uint16) (*MCP9808, error) {
	m := &MCP9808{dev: &i2c.Dev{Bus: bus, Addr: addr}}

	conf, err := m.readRegister(mcp9808RegConfig)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read mcp9808 configuration")
	}
	conf &^= mcp9808ConfigShutdown
	if err := m.writeRegister(mcp9808RegConfig, conf); err != nil {
		return nil, errors.Wrap(err, "couldn't write mcp9808 configuration")
	}

	return m, nil
}

func (m *MCP9808) Name() string {
	return "mcp9808"
}

func (m *MCP9808) Fields() sensors.Field {
	return 0
}

func (m *MCP9808) Read() (sensors.Reading, error) {
	raw, err := m.readRegister(mcp9808RegAmbient)
	if err != nil {
		return sensors.Reading{}, errors.Wrap(err, "couldn't read mcp9808 temperature")
	}
	return sensors.Reading{Temperature: decodeMCP9808(raw)}, nil
}

func (m *MCP9808) readRegister(reg byte) (uint16, error) {
	var r [2]byte
	if err := m.dev.Tx([]byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r[:]), nil
}

func (m *MCP9808) writeRegister(reg byte, v uint16) error {
	w := []byte{reg, 0, 0}
	binary.BigEndian.PutUint16(w[1:], v)
	return m.dev.Tx(w, nil)
}

// decodeMCP9808 converts the ambient register: bits 15..13 are alert flags,
// bit 12 is the sign, bits 11..0 the magnitude in 1/16 °C.
func decodeMCP9808(raw uint16) float32 {
	v := int32(raw & 0x0fff)
	if raw&0x1000 != 0 {
		v -= 0x1000
	}
	return float32(v) * mcp9808Resolution
}
