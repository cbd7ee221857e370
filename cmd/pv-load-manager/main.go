// Package main provides the PV-aware EV charging load manager's entry
// point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/pv-load-manager/config"
	"github.com/devskill-org/pv-load-manager/core/allocate"
	"github.com/devskill-org/pv-load-manager/core/clock"
	"github.com/devskill-org/pv-load-manager/core/control"
	"github.com/devskill-org/pv-load-manager/core/loop"
	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
	"github.com/devskill-org/pv-load-manager/core/store"
	"github.com/devskill-org/pv-load-manager/server"
	filestore "github.com/devskill-org/pv-load-manager/store/file"
	pgstore "github.com/devskill-org/pv-load-manager/store/postgres"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	fmt.Printf("Starting PV-aware load manager with the following configuration:\n")
	fmt.Printf("  Stations: %d\n", len(cfg.Stations))
	fmt.Printf("  Total current limit: %d A\n", cfg.TotalCurrentLimitA)
	fmt.Printf("  Mode: %s\n", cfg.Mode)
	fmt.Printf("  Measurement interval: %s\n", cfg.MeasurementInterval)
	if cfg.DryRun {
		fmt.Printf("  DRY-RUN MODE ENABLED: setpoints will be logged, not dispatched\n")
	}
	fmt.Println()

	logger := log.New(os.Stdout, "[LOAD-MANAGER] ", log.LstdFlags)

	settingsStore, err := buildStore(cfg)
	if err != nil {
		logger.Fatalf("failed to initialize settings store: %v", err)
	}

	defaultTunables := allocate.Tunables{
		HysteresisThresholdA: cfg.HysteresisThresholdA,
		HysteresisDelayS:     cfg.HysteresisDelayS,
		RampUpDelayS:         cfg.RampUpDelayS,
		MeasurementIntervalS: cfg.MeasurementInterval.Seconds(),
	}

	controller, err := control.New(settingsStore, defaultTunables)
	if err != nil {
		logger.Fatalf("failed to initialize controller: %v", err)
	}
	if _, persisted, err := settingsStore.Load(); err == nil && !persisted {
		if err := controller.SetMode(cfg.Mode); err != nil {
			logger.Printf("failed to apply configured mode: %v", err)
		}
	}

	livenessWindow := 3 * cfg.MeasurementInterval.Seconds()
	stations := station.NewTracker(cfg.StationConfigs(), livenessWindow)

	pvData := pv.NewData()
	budget := allocate.BudgetConfig{
		TotalCurrentLimitA: cfg.TotalCurrentLimitA,
		VoltageV:           cfg.VoltageV,
		Phases:             cfg.Phases,
	}
	estimator := pv.NewEstimator(pvData, budget.WattsPerAmp())

	clk := clock.NewReal()

	stationIDs := make([]int, 0, len(cfg.Stations))
	for _, s := range cfg.Stations {
		stationIDs = append(stationIDs, s.ID)
	}

	srv := server.New(cfg.ListenAddress, controller, stations, estimator, clk, cfg.Latitude, cfg.Longitude, logger)
	healthSrv := server.NewHealthServer(controller, stations, estimator, clk, cfg.HealthCheckPort, logger)

	wiring := newTransportWiring(cfg, stations, pvData, srv.Mux(), logger, cfg.DryRun)
	defer wiring.Close()

	controlLoop := loop.New(stations, stationIDs, estimator, controller, budget, clk, wiring.Poll, wiring.Dispatch, cfg.MeasurementInterval, logger)

	srv.Start()
	healthSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go controlLoop.Run(ctx)

	logger.Printf("Load manager started. Press Ctrl+C to stop...")
	<-sigChan
	logger.Printf("Shutdown signal received, stopping...")

	cancel()
	controlLoop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Printf("error stopping server: %v", err)
	}
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		logger.Printf("error stopping health server: %v", err)
	}

	logger.Printf("Load manager stopped successfully")
}

// buildStore selects the settings persistence backend per configuration.
func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.SettingsStoreKind {
	case "postgres":
		pg, err := pgstore.New(cfg.PostgresConnStr)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres settings store: %w", err)
		}
		if err := pg.Ensure(context.Background()); err != nil {
			return nil, fmt.Errorf("ensuring postgres settings table: %w", err)
		}
		return pg, nil
	default:
		return filestore.New(cfg.SettingsFilePath), nil
	}
}

func showHelp() {
	fmt.Println("pv-load-manager - allocate shared charging current from solar surplus")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Divides a shared current budget among connected EV chargers, scaling")
	fmt.Println("  allocation down to the available solar surplus in pv_only mode and")
	fmt.Println("  enforcing per-station minimums, ramp limits, and an emergency")
	fmt.Println("  scale-down against the site's hard current ceiling.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  pv-load-manager [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  pv-load-manager --config=config.json")
	fmt.Println("  pv-load-manager -help")
}
