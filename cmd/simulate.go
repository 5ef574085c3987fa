package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltgrid/stationd/app"
	"github.com/voltgrid/stationd/config"
	"github.com/voltgrid/stationd/core/model"
	"github.com/voltgrid/stationd/infra/logger"
)

var (
	simVehicles int
	simSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive the station with synthetic arrivals and print a KPI report",
	RunE:  simulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simVehicles, "vehicles", 20, "number of synthetic arrivals")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", time.Now().UnixNano(), "random seed")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Exporters are pointless for a one-shot run.
	cfg.Notifier.Enabled = false
	cfg.Metrics.PrometheusEnabled = false
	cfg.Metrics.InfluxEnabled = false

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	logg := logger.New("simulate")
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	rng := rand.New(rand.NewSource(simSeed))
	classes := []model.VehicleClass{
		model.ClassEmergency, model.ClassReserved, model.ClassAutonomous, model.ClassStandard,
	}

	svc.Engine.Start()
	for i := 0; i < simVehicles; i++ {
		v := model.Vehicle{
			ID:           fmt.Sprintf("veh-%03d", i),
			Class:        classes[rng.Intn(len(classes))],
			BatteryLevel: rng.Float64() * 100,
		}
		if _, err := svc.Engine.SubmitRequest(v); err != nil {
			logg.Warnf("submit %s: %v", v.ID, err)
		}
		// Drain a session now and then so the queue keeps moving.
		if sessions := svc.Engine.Sessions(); len(sessions) > 0 && rng.Intn(2) == 0 {
			s := sessions[rng.Intn(len(sessions))]
			energy := 5 + rng.Float64()*45
			if _, err := svc.Engine.ReportChargingComplete(s.VehicleID, s.SlotID, energy); err != nil {
				logg.Warnf("complete %s: %v", s.VehicleID, err)
			}
		}
	}
	for _, s := range svc.Engine.Sessions() {
		if _, err := svc.Engine.ReportChargingComplete(s.VehicleID, s.SlotID, 5+rng.Float64()*45); err != nil {
			logg.Warnf("complete %s: %v", s.VehicleID, err)
		}
	}

	report := svc.KPI.Snapshot()
	fmt.Printf("arrivals:        %d\n", simVehicles)
	fmt.Printf("allocations:     %d\n", report.Allocations)
	fmt.Printf("completed:       %d\n", report.Completed)
	fmt.Printf("left waiting:    %d\n", svc.Engine.QueueDepth())
	fmt.Printf("mean wait:       %.2fs\n", report.MeanWaitSec)
	fmt.Printf("p95 wait:        %.2fs\n", report.P95WaitSec)
	fmt.Printf("energy:          %.1f kWh\n", report.EnergyKWh)
	fmt.Printf("revenue:         %.2f\n", report.Revenue)
	return nil
}
