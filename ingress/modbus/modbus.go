// Package modbus is the Modbus/TCP ingress transport: it polls each
// station's meter/charger registers and the PV inverter's surplus register,
// translating raw register values into the readings core/station and
// core/pv expect.
package modbus

import (
	"fmt"
	"strconv"
	"time"

	gomodbus "github.com/goburrow/modbus"
)

// Register layout for a station's charger/meter, one holding register each,
// matching the fixture register map this deployment's chargers expose.
const (
	regActualCurrentDeciA = 0 // actual current, tenths of an amp
	regStatusCode         = 1 // 0 offline 1 not_connected 2 active 3 charging 4 disabled 5 error
	regVehicleConnected   = 2 // 0/1
)

var statusCodeToRaw = map[uint16]string{
	0: "offline",
	1: "not connected",
	2: "active",
	3: "charging",
	4: "disabled",
	5: "error",
}

// pvSurplusRegisterW is the inverter holding register reporting instantaneous
// PV surplus power in watts.
const pvSurplusRegisterW = 0

// Target addresses a single Modbus/TCP endpoint. The station/PV Address map
// supplies "host:port" and "slave_id".
type Target struct {
	HostPort string
	SlaveID  byte
}

// ParseTarget reads a station or PV Address map into a Target.
func ParseTarget(address map[string]string) (Target, error) {
	hostPort, ok := address["host_port"]
	if !ok || hostPort == "" {
		return Target{}, fmt.Errorf("modbus: address missing host_port")
	}
	slaveRaw, ok := address["slave_id"]
	if !ok {
		return Target{}, fmt.Errorf("modbus: address missing slave_id")
	}
	slave, err := strconv.Atoi(slaveRaw)
	if err != nil || slave < 0 || slave > 255 {
		return Target{}, fmt.Errorf("modbus: invalid slave_id %q", slaveRaw)
	}
	return Target{HostPort: hostPort, SlaveID: byte(slave)}, nil
}

// Reader polls Modbus/TCP targets, opening and closing a connection per
// poll rather than holding one handler per target open indefinitely, since
// stations may be intermittently reachable over the LAN.
type Reader struct {
	timeout time.Duration
}

// NewReader returns a Reader with the given per-request timeout.
func NewReader(timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	return &Reader{timeout: timeout}
}

// StationReading is one station's poll result.
type StationReading struct {
	ActualCurrentA   float64
	StatusRaw        string
	VehicleConnected bool
}

// PollStation reads a station's three holding registers in one round trip.
func (r *Reader) PollStation(target Target) (StationReading, error) {
	handler := gomodbus.NewTCPClientHandler(target.HostPort)
	handler.SlaveId = target.SlaveID
	handler.Timeout = r.timeout
	if err := handler.Connect(); err != nil {
		return StationReading{}, fmt.Errorf("modbus: connecting to %s: %w", target.HostPort, err)
	}
	defer handler.Close()

	client := gomodbus.NewClient(handler)
	regs, err := client.ReadHoldingRegisters(regActualCurrentDeciA, 3)
	if err != nil {
		return StationReading{}, fmt.Errorf("modbus: reading station registers from %s: %w", target.HostPort, err)
	}
	if len(regs) < 6 {
		return StationReading{}, fmt.Errorf("modbus: short register response from %s", target.HostPort)
	}

	deciAmps := be16(regs[0:2])
	statusCode := be16(regs[2:4])
	connected := be16(regs[4:6])

	raw, ok := statusCodeToRaw[statusCode]
	if !ok {
		raw = "error"
	}

	return StationReading{
		ActualCurrentA:   float64(deciAmps) / 10.0,
		StatusRaw:        raw,
		VehicleConnected: connected != 0,
	}, nil
}

// PollPVSurplus reads the inverter's surplus-power register, in watts.
func (r *Reader) PollPVSurplus(target Target) (float64, error) {
	handler := gomodbus.NewTCPClientHandler(target.HostPort)
	handler.SlaveId = target.SlaveID
	handler.Timeout = r.timeout
	if err := handler.Connect(); err != nil {
		return 0, fmt.Errorf("modbus: connecting to %s: %w", target.HostPort, err)
	}
	defer handler.Close()

	client := gomodbus.NewClient(handler)
	regs, err := client.ReadHoldingRegisters(pvSurplusRegisterW, 1)
	if err != nil {
		return 0, fmt.Errorf("modbus: reading PV surplus register from %s: %w", target.HostPort, err)
	}
	if len(regs) < 2 {
		return 0, fmt.Errorf("modbus: short register response from %s", target.HostPort)
	}
	return float64(be16(regs[0:2])), nil
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
