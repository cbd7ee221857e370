// Package ingress holds the transport-independent telemetry parsing and
// application logic shared by every ingress adapter (ingress/modbus,
// ingress/ws). It never touches a socket; it only turns a decoded reading
// into the station.Tracker/pv.Data mutations the control loop needs.
package ingress

import (
	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
)

// StationReading is one station's decoded telemetry sample, independent of
// whichever transport produced it.
type StationReading struct {
	StationID        int
	ActualCurrentA   float64
	StatusRaw        string
	VehicleConnected bool
}

// PVReading is one PV surplus-power sample, independent of transport.
type PVReading struct {
	SurplusW float64
}

// ApplyStation records a station reading into tracker at time now.
func ApplyStation(tracker *station.Tracker, r StationReading, now float64) {
	tracker.ApplyCurrentReading(r.StationID, r.ActualCurrentA, now)
	tracker.ApplyStateReading(r.StationID, r.StatusRaw, now)
	tracker.ApplyVehicleConnected(r.StationID, r.VehicleConnected, now)
}

// ApplyPV records a PV reading into data at time now.
func ApplyPV(data *pv.Data, r PVReading, now float64) {
	data.Apply(r.SurplusW, now)
}
