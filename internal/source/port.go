package source

import (
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPorter is the minimal interface needed for a serial port. It lets
// the serial source run against in-memory ports in tests.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens the port at path with the given options.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)

// PortInfo describes one enumerated serial port.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Matches reports whether the port carries the given device identifier as its
// USB product string, serial number or port name.
func (p PortInfo) Matches(identifier string) bool {
	return identifier != "" &&
		(p.Product == identifier || p.SerialNumber == identifier || p.Name == identifier)
}

// PortLister enumerates the serial ports present on the host.
type PortLister func() ([]PortInfo, error)

// OpenSerialPort opens a real serial port through go.bug.st/serial.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// ListPorts enumerates the host's serial ports with USB details where the
// platform provides them.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
