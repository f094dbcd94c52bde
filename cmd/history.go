package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/enginesim/config"
	"github.com/kilianp07/enginesim/core/analyzer"
	"github.com/kilianp07/enginesim/core/factory"
	"github.com/kilianp07/enginesim/core/telemetry"
	"github.com/kilianp07/enginesim/infra/jsonl"
	"github.com/kilianp07/enginesim/infra/thingspeak"
)

var historyResults int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Summarize the samples stored by the ThingSpeak or JSONL sink",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyResults, "results", "n", 100, "number of entries to fetch")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fetcher, err := historySource(cfg)
	if err != nil {
		return err
	}
	if c, ok := fetcher.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	samples, err := fetcher.Fetch(ctx, historyResults)
	if errors.Is(err, telemetry.ErrNoHistory) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), analyzer.NoSamplesMessage)
		return err
	}
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	win := analyzer.New(cfg.Analyzer.WindowSize)
	for _, s := range samples {
		win.Add(s)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), analyzer.Format(win))
	return err
}

// historySource builds a fetcher from the first thingspeak or jsonl sink of
// the configuration.
func historySource(cfg *config.Config) (telemetry.HistoryFetcher, error) {
	for _, s := range cfg.Sinks {
		switch s.Type {
		case "thingspeak":
			var c thingspeak.Config
			if err := factory.Decode(s.Conf, &c); err != nil {
				return nil, fmt.Errorf("thingspeak config: %w", err)
			}
			if c.TankLiters <= 0 {
				c.TankLiters = cfg.Simulation.Vehicle.TankLiters
			}
			cl, err := thingspeak.NewClient(c)
			if err != nil {
				return nil, err
			}
			return cl, nil
		case "jsonl":
			var c jsonl.Config
			if err := factory.Decode(s.Conf, &c); err != nil {
				return nil, fmt.Errorf("jsonl config: %w", err)
			}
			st, err := jsonl.NewStore(c)
			if err != nil {
				return nil, err
			}
			return st, nil
		}
	}
	return nil, fmt.Errorf("no history sink configured (thingspeak or jsonl)")
}
