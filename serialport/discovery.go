package serialport

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial device on the host. The USB metadata fields
// are empty for non-USB ports.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// List returns the device names of all serial ports on the host.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}

	return ports, nil
}

// Details returns all serial ports on the host with their USB metadata, for
// picking a controller out of several attached devices.
func Details() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list port details: %w", err)
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, port := range ports {
		infos = append(infos, PortInfo{
			Name:         port.Name,
			IsUSB:        port.IsUSB,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
			Product:      port.Product,
		})
	}

	return infos, nil
}
