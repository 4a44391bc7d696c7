package main

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/steerlab/steer/engine"
	"github.com/steerlab/steer/examples/diffusion"
	"github.com/steerlab/steer/monitoring"
	"github.com/steerlab/steer/recording"
)

var (
	demoPort     int
	demoRate     float64
	demoCells    int
	demoHeadless bool
	demoOpen     bool
	demoRecord   string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the heat diffusion demo.",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoPort, "port", 0,
		"port of the monitoring server (0 picks a random port)")
	demoCmd.Flags().Float64Var(&demoRate, "rate", 20,
		"maximum steps per second (0 runs unthrottled)")
	demoCmd.Flags().IntVar(&demoCells, "cells", 64,
		"number of rod cells")
	demoCmd.Flags().BoolVar(&demoHeadless, "headless", false,
		"run without the monitoring server")
	demoCmd.Flags().BoolVar(&demoOpen, "open", false,
		"open the monitor in the default browser")
	demoCmd.Flags().StringVar(&demoRecord, "record", "",
		"record per-step energy to the named SQLite file")

	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, _ []string) error {
	applyEnvDefaults(cmd)

	m := diffusion.New(demoCells)

	e, err := engine.New(m)
	if err != nil {
		return err
	}
	e.WithStepRate(demoRate)

	if demoRecord != "" {
		if err := recordEnergy(e, demoRecord); err != nil {
			return err
		}
	}

	if !demoHeadless {
		monitor := monitoring.NewMonitor()
		if demoPort > 0 {
			monitor.WithPortNumber(demoPort)
		}
		if demoOpen {
			monitor.WithBrowser()
		}
		monitor.RegisterEngine(e)
		monitor.StartServer()
	}

	return e.Run()
}

type energySample struct {
	Step   int64
	Energy float64
}

// recordEnergy polls the energy field once per second, like any other
// viewer, and records one row per observed step.
func recordEnergy(e *engine.Engine, path string) error {
	w, err := recording.NewWriter(path)
	if err != nil {
		return err
	}

	err = w.CreateTable("energy", energySample{})
	if err != nil {
		return err
	}

	go func() {
		lastStep := int64(-1)
		for range time.Tick(time.Second) {
			step := e.CurrentStep()
			if step == lastStep {
				continue
			}

			a, err := e.ReadField("energy")
			if err != nil {
				continue
			}

			lastStep = step
			_ = w.InsertData("energy", energySample{
				Step:   step,
				Energy: a.Data[0],
			})
		}
	}()

	return nil
}

func applyEnvDefaults(cmd *cobra.Command) {
	if !cmd.Flags().Changed("port") {
		if v, err := strconv.Atoi(os.Getenv("STEER_PORT")); err == nil {
			demoPort = v
		}
	}

	if !cmd.Flags().Changed("rate") {
		if v, err := strconv.ParseFloat(os.Getenv("STEER_RATE"), 64); err == nil {
			demoRate = v
		}
	}
}
