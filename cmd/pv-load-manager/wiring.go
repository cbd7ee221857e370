package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/devskill-org/pv-load-manager/config"
	"github.com/devskill-org/pv-load-manager/core/dispatch"
	"github.com/devskill-org/pv-load-manager/core/ingress"
	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
	dispatchmodbus "github.com/devskill-org/pv-load-manager/dispatch/modbus"
	dispatchws "github.com/devskill-org/pv-load-manager/dispatch/ws"
	ingressmodbus "github.com/devskill-org/pv-load-manager/ingress/modbus"
	"github.com/devskill-org/pv-load-manager/ingress/sigenergy"
	ingressws "github.com/devskill-org/pv-load-manager/ingress/ws"
)

// transportWiring binds the configured ingress/dispatch transports to the
// loop's PollFunc/DispatchFunc signatures, and owns whatever connections or
// background listeners those transports need.
type transportWiring struct {
	poll     func(now float64) error
	dispatch func(cmds []dispatch.Command) error
	closers  []func()
}

func (w *transportWiring) Poll(now float64) error                 { return w.poll(now) }
func (w *transportWiring) Dispatch(cmds []dispatch.Command) error { return w.dispatch(cmds) }
func (w *transportWiring) Close() {
	for _, c := range w.closers {
		c()
	}
}

func newTransportWiring(cfg *config.Config, stations *station.Tracker, pvData *pv.Data, mux *http.ServeMux, logger *log.Logger, dryRun bool) *transportWiring {
	w := &transportWiring{}

	stationAddrByID := make(map[int]map[string]string, len(cfg.Stations))
	for _, s := range cfg.Stations {
		stationAddrByID[s.ID] = s.Address
	}

	switch cfg.IngressTransport {
	case "ws":
		listener := ingressws.NewListener(logger)
		mux.HandleFunc("/api/ingress", listener.Handler())
		w.poll = pollFromWS(listener, stations, pvData)
	default:
		reader := ingressmodbus.NewReader(1 * time.Second)
		sigenergyReader := sigenergy.NewReader(1 * time.Second)
		w.poll = pollFromModbus(reader, sigenergyReader, cfg, stationAddrByID, stations, pvData, logger)
	}

	switch cfg.DispatchTransport {
	case "ws":
		dialer := dispatchws.NewDialer(logger)
		w.closers = append(w.closers, dialer.Close)
		w.dispatch = dispatchToWS(dialer, stationAddrByID, logger, dryRun)
	default:
		writer := dispatchmodbus.NewWriter(1 * time.Second)
		w.dispatch = dispatchToModbus(writer, stationAddrByID, logger, dryRun)
	}

	return w
}

func pollFromModbus(reader *ingressmodbus.Reader, sigenergyReader *sigenergy.Reader, cfg *config.Config, addrByID map[int]map[string]string, stations *station.Tracker, pvData *pv.Data, logger *log.Logger) func(now float64) error {
	return func(now float64) error {
		for id, addr := range addrByID {
			target, err := ingressmodbus.ParseTarget(addr)
			if err != nil {
				logger.Printf("[ingress] station %d: %v", id, err)
				continue
			}
			reading, err := reader.PollStation(target)
			if err != nil {
				logger.Printf("[ingress] station %d: poll failed: %v", id, err)
				continue
			}
			ingress.ApplyStation(stations, ingress.StationReading{
				StationID:        id,
				ActualCurrentA:   reading.ActualCurrentA,
				StatusRaw:        reading.StatusRaw,
				VehicleConnected: reading.VehicleConnected,
			}, now)
		}

		if len(cfg.PVAddress) == 0 {
			return nil
		}

		var surplusW float64
		if cfg.PVSource == "sigenergy" {
			sigTarget, err := sigenergy.ParseTarget(cfg.PVAddress)
			if err != nil {
				return fmt.Errorf("pv ingress: %w", err)
			}
			surplusW, err = sigenergyReader.PollSurplus(sigTarget)
			if err != nil {
				return fmt.Errorf("pv ingress: poll failed: %w", err)
			}
		} else {
			pvTarget, err := ingressmodbus.ParseTarget(cfg.PVAddress)
			if err != nil {
				return fmt.Errorf("pv ingress: %w", err)
			}
			surplusW, err = reader.PollPVSurplus(pvTarget)
			if err != nil {
				return fmt.Errorf("pv ingress: poll failed: %w", err)
			}
		}
		ingress.ApplyPV(pvData, ingress.PVReading{SurplusW: surplusW}, now)
		return nil
	}
}

func pollFromWS(listener *ingressws.Listener, stations *station.Tracker, pvData *pv.Data) func(now float64) error {
	return func(now float64) error {
		for {
			select {
			case t := <-listener.Readings:
				switch t.Kind {
				case "station":
					ingress.ApplyStation(stations, ingress.StationReading{
						StationID:        t.StationID,
						ActualCurrentA:   t.ActualCurrentA,
						StatusRaw:        t.StatusRaw,
						VehicleConnected: t.VehicleConnected,
					}, now)
				case "pv":
					ingress.ApplyPV(pvData, ingress.PVReading{SurplusW: t.PVSurplusW}, now)
				}
			default:
				return nil
			}
		}
	}
}

func dispatchToModbus(writer *dispatchmodbus.Writer, addrByID map[int]map[string]string, logger *log.Logger, dryRun bool) func(cmds []dispatch.Command) error {
	return func(cmds []dispatch.Command) error {
		for _, cmd := range cmds {
			if dryRun {
				logger.Printf("[dispatch:dry-run] station %d -> %dA (type=%v)", cmd.StationID, cmd.AmpsA, cmd.Type)
				continue
			}
			addr, ok := addrByID[cmd.StationID]
			if !ok {
				logger.Printf("[dispatch] station %d: no address configured", cmd.StationID)
				continue
			}
			target, err := ingressmodbus.ParseTarget(addr)
			if err != nil {
				logger.Printf("[dispatch] station %d: %v", cmd.StationID, err)
				continue
			}
			if err := writer.WriteSetpoint(target, cmd.AmpsA); err != nil {
				logger.Printf("[dispatch] station %d: %v", cmd.StationID, err)
			}
		}
		return nil
	}
}

func dispatchToWS(dialer *dispatchws.Dialer, addrByID map[int]map[string]string, logger *log.Logger, dryRun bool) func(cmds []dispatch.Command) error {
	return func(cmds []dispatch.Command) error {
		for _, cmd := range cmds {
			if dryRun {
				logger.Printf("[dispatch:dry-run] station %d -> %dA (type=%v)", cmd.StationID, cmd.AmpsA, cmd.Type)
				continue
			}
			addr, ok := addrByID[cmd.StationID]
			if !ok {
				logger.Printf("[dispatch] station %d: no address configured", cmd.StationID)
				continue
			}
			url, ok := addr["ws_url"]
			if !ok {
				logger.Printf("[dispatch] station %d: address missing ws_url", cmd.StationID)
				continue
			}
			commandName := "set_current"
			switch cmd.Type {
			case dispatch.Pause:
				commandName = "pause"
			case dispatch.Release:
				commandName = "release"
			}
			frame := dispatchws.CommandFrame{StationID: cmd.StationID, Command: commandName, AmpsA: cmd.AmpsA}
			if err := dialer.WriteCommand(cmd.StationID, url, frame); err != nil {
				logger.Printf("[dispatch] station %d: %v", cmd.StationID, err)
			}
		}
		return nil
	}
}
