package transports

import (
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ListPorts returns the names of every serial port on the system.
func ListPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ports))
	for _, port := range ports {
		names = append(names, port.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ListCandidatePorts returns the serial ports that look like USB servo adapters.
func ListCandidatePorts() ([]string, error) {
	ports, err := ListPorts()
	if err != nil {
		return nil, err
	}
	return FilterCandidatePorts(ports), nil
}

// FilterCandidatePorts keeps USB serial device names.
func FilterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if IsCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

var candidatePrefixes = []string{
	// Linux
	"/dev/ttyUSB",
	"/dev/ttyACM",
	// macOS
	"/dev/tty.usbmodem",
	"/dev/tty.usbserial",
	"/dev/cu.usbmodem",
	"/dev/cu.usbserial",
	// Windows
	"COM",
}

// IsCandidatePort reports whether port matches a USB serial naming pattern.
func IsCandidatePort(port string) bool {
	for _, prefix := range candidatePrefixes {
		if strings.HasPrefix(port, prefix) {
			return true
		}
	}
	return false
}
