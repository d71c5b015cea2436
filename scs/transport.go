package scs

import (
	"io"
	"time"

	"github.com/Grigorij-Dudnik/RoboCrew/transports"
)

// Transport is the interface for low-level communication with the servo bus.
// This abstraction allows for testing with mock implementations.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout sets how long a single Read may block.
	SetReadTimeout(timeout time.Duration) error

	// Flush discards any buffered input data.
	Flush() error
}

// Opener turns a port name and baud rate into an open Transport.
type Opener func(name string, baudRate int) (Transport, error)

// SerialOpener opens a hardware serial port.
func SerialOpener(name string, baudRate int) (Transport, error) {
	return transports.OpenSerial(transports.SerialConfig{
		Port:     name,
		BaudRate: baudRate,
	})
}

// ListPorts returns every serial port the system reports.
func ListPorts() ([]string, error) {
	return transports.ListPorts()
}
