package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/enginesim/core/analyzer"
	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/simulator"
)

var (
	simSteps int
	simStep  time.Duration
	simSeed  int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the simulator offline and print every sample and the summary",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simSteps, "steps", "n", 20, "number of steps")
	simulateCmd.Flags().DurationVar(&simStep, "step", 4*time.Second, "simulated time per step")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed, 0 seeds from the clock")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if simSteps < 0 {
		return fmt.Errorf("steps must not be negative")
	}
	seed := cfg.Simulation.Seed
	if cmd.Flags().Changed("seed") {
		seed = simSeed
	}
	return simulate(cmd.OutOrStdout(), cfg.Simulation.Vehicle, cfg.Analyzer.WindowSize, simSteps, simStep, simulator.NewRandom(seed))
}

func simulate(out io.Writer, p simulator.Params, window, steps int, step time.Duration, rnd simulator.Random) error {
	notify := events.PublisherFunc(func(ev events.VehicleEvent) {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", ev.Kind, ev.Message())
	})
	sim, err := simulator.New(p, simulator.WithRandom(rnd), simulator.WithPublisher(notify))
	if err != nil {
		return err
	}
	win := analyzer.New(window)
	for i := 0; i < steps; i++ {
		smp := sim.Step(step)
		win.Add(smp)
		if _, err := fmt.Fprintln(out, smp.Line()); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(out, analyzer.Format(win))
	return err
}
