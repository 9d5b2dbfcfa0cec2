// Command dashboard renders a terminal view of a parity-arb run directory.
// It is a wholly separate process from arbbot: it tails the run directory's
// JSONL sinks on its own refresh cadence and never touches engine memory.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mreid/parity-arb/internal/dashboard"
)

func main() {
	cfg := dashboard.ConfigFromEnv()

	root := &cobra.Command{
		Use:   "dashboard",
		Short: "Terminal dashboard for a parity-arb run directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	root.Flags().StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "directory containing run, run2, run3, ... subdirectories")
	root.Flags().StringVar(&cfg.RunDir, "run-dir", cfg.RunDir, "explicit run directory to tail (overrides discovery)")
	root.Flags().IntVar(&cfg.RefreshMs, "refresh-ms", cfg.RefreshMs, "milliseconds between redraws")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg dashboard.Config) error {
	runDir := cfg.RunDir
	if runDir == "" {
		found, err := dashboard.DiscoverLatestRunDir(cfg.BaseDir)
		if err != nil {
			return fmt.Errorf("discover run directory: %w", err)
		}
		runDir = found
	}

	reader := dashboard.NewReader(runDir)
	analyzer := dashboard.NewAnalyzer()

	ticker := time.NewTicker(time.Duration(cfg.RefreshMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		events, err := reader.Poll()
		if err != nil {
			fmt.Fprintf(os.Stderr, "poll error: %v\n", err)
		} else {
			analyzer.Ingest(events)
		}
		render(runDir, analyzer)
		<-ticker.C
	}
}

func render(runDir string, analyzer *dashboard.Analyzer) {
	fmt.Print("\033[H\033[2J")
	fmt.Printf("parity-arb dashboard  |  run dir: %s  |  mismatches: %d\n\n", runDir, analyzer.MismatchCount())

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Profile", "Coin", "State", "Trades", "Wins", "Losses", "Total Profit", "Last Gap"})

	for _, r := range analyzer.Rows() {
		table.Append([]string{
			r.Profile,
			r.Coin,
			r.State,
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%d", r.Wins),
			fmt.Sprintf("%d", r.Losses),
			fmt.Sprintf("%.4f", r.TotalProfit),
			fmt.Sprintf("%.4f", r.LastGap),
		})
	}

	table.Render()
}
