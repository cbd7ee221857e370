// Package modbus is the Modbus/TCP dispatch transport: it writes a
// station's commanded setpoint (or a release/pause value) to the charger's
// command register.
package modbus

import (
	"fmt"
	"time"

	gomodbus "github.com/goburrow/modbus"

	ingressmodbus "github.com/devskill-org/pv-load-manager/ingress/modbus"
)

// regSetpointDeciA is the charger's writable command register: desired
// current in tenths of an amp, 0 meaning release/pause.
const regSetpointDeciA = 10

// Writer issues setpoint writes to a Modbus/TCP charger.
type Writer struct {
	timeout time.Duration
}

// NewWriter returns a Writer with the given per-request timeout.
func NewWriter(timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	return &Writer{timeout: timeout}
}

// WriteSetpoint writes amps (0 meaning release) to the station's command
// register.
func (w *Writer) WriteSetpoint(target ingressmodbus.Target, amps int) error {
	handler := gomodbus.NewTCPClientHandler(target.HostPort)
	handler.SlaveId = target.SlaveID
	handler.Timeout = w.timeout
	if err := handler.Connect(); err != nil {
		return fmt.Errorf("modbus dispatch: connecting to %s: %w", target.HostPort, err)
	}
	defer handler.Close()

	client := gomodbus.NewClient(handler)
	deciAmps := uint16(amps * 10)
	if _, err := client.WriteSingleRegister(regSetpointDeciA, deciAmps); err != nil {
		return fmt.Errorf("modbus dispatch: writing setpoint to %s: %w", target.HostPort, err)
	}
	return nil
}
