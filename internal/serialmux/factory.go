package serialmux

import (
	"bufio"

	"go.bug.st/serial"
)

// RealSerialPortFactory opens ports through the go.bug.st/serial driver.
type RealSerialPortFactory struct{}

// Open opens the device at path with the given mode.
func (RealSerialPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	return serial.Open(path, mode.driverMode())
}

// driverMode maps a SerialPortMode onto the driver's mode structure.
func (m *SerialPortMode) driverMode() *serial.Mode {
	dm := &serial.Mode{
		BaudRate: m.BaudRate,
		DataBits: m.DataBits,
	}

	switch m.StopBits {
	case TwoStopBits:
		dm.StopBits = serial.StopBits(2)
	default:
		dm.StopBits = serial.StopBits(1)
	}

	switch m.Parity {
	case EvenParity:
		dm.Parity = serial.EvenParity
	case OddParity:
		dm.Parity = serial.OddParity
	default:
		dm.Parity = serial.NoParity
	}

	return dm
}

// NewSerialMuxFromFactory creates a SerialMux over a port opened by the given
// factory. Tests inject a MockSerialPortFactory here to run the mux against a
// TestableSerialPort.
func NewSerialMuxFromFactory(factory SerialPortFactory, path string, opts PortOptions, split bufio.SplitFunc) (*SerialMux[SerialPorter], error) {
	mode, err := opts.PortMode()
	if err != nil {
		return nil, err
	}

	port, err := factory.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux[SerialPorter](port, split), nil
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port
// at the given path using the provided serial options and frame splitter.
func NewRealSerialMux(path string, opts PortOptions, split bufio.SplitFunc) (*SerialMux[SerialPorter], error) {
	return NewSerialMuxFromFactory(RealSerialPortFactory{}, path, opts, split)
}
