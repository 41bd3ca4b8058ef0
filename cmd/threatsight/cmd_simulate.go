package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/threatsight/internal/ingest"
	"github.com/user/threatsight/internal/simulation"
)

var simulateDuration time.Duration

func init() {
	simulateCmd.Flags().DurationVar(&simulateDuration, "duration", 10*time.Second, "how long to run the simulation")
	rootCmd.AddCommand(simulateCmd)
}

// simulateCmd runs the scenario headless and prints the resulting aggregate,
// useful for checking a scenario file before serving it.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulation scenario headless and print stats",
	Args:  cobra.NoArgs,
	RunE:  runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	store := newStore(cfg)
	pipe := ingest.New(store, int64(cfg.Ingest.MaxConcurrent))

	scenario, err := loadScenario(cfg)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	driver := simulation.NewDriver(scenario, store, pipe.Submit)
	driver.SetDrain(func() { pipe.Queue().WaitIdle(2 * time.Second) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipe.Start(ctx)
	defer pipe.Stop()

	if err := driver.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Running scenario %q for %s...\n", scenario.Name, simulateDuration)
	time.Sleep(simulateDuration)
	pipe.Queue().WaitIdle(2 * time.Second)

	// Snapshot before Stop resets the log.
	stats := store.Stats()

	driver.Stop()

	fmt.Fprintf(os.Stdout, "messages: %d\n", stats.Total)
	fmt.Fprintf(os.Stdout, "avg latency: %s\n", stats.AverageLatency.Round(time.Millisecond))
	fmt.Fprintf(os.Stdout, "success rate: %.2f\n", stats.SuccessRate)
	fmt.Fprintf(os.Stdout, "rate: %.2f msg/s\n", stats.MessageRate)
	fmt.Fprintln(os.Stdout, "by type:")
	for mt, n := range stats.ByType {
		fmt.Fprintf(os.Stdout, "  %-20s %d\n", mt, n)
	}
	fmt.Fprintln(os.Stdout, "by agent:")
	for agent, n := range stats.ByAgent {
		fmt.Fprintf(os.Stdout, "  %-20s %d\n", agent, n)
	}
	return nil
}
