package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/loadtest"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "sync",
	Short:   "Measure store latency and queue integrity under concurrency",
	Long: `Run a load test against a scratch store. The configured store is not
touched.

Two phases run:
  reads   - concurrent clients read restaurants, an index and reviews
  writes  - concurrent clients queue reviews while drains replay them against
            an in-process API that fails --fail-rate of requests

The command exits non-zero if any queued review was lost or delivered twice.

Examples:
  restsync loadtest
  restsync loadtest --clients 50 --restaurants 500 --fail-rate 0.5
  restsync loadtest --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		clients, _ := cmd.Flags().GetInt("clients")
		reads, _ := cmd.Flags().GetInt("reads")
		restaurants, _ := cmd.Flags().GetInt("restaurants")
		writes, _ := cmd.Flags().GetInt("writes")
		drainers, _ := cmd.Flags().GetInt("drainers")
		failRate, _ := cmd.Flags().GetFloat64("fail-rate")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if clients <= 0 || reads <= 0 || restaurants <= 0 || writes < 0 || drainers <= 0 {
			return fmt.Errorf("--clients, --reads, --restaurants and --drainers must be positive")
		}
		if failRate < 0 || failRate > 1 {
			return fmt.Errorf("--fail-rate must be between 0.0 and 1.0")
		}

		dir, err := os.MkdirTemp("", "restsync-loadtest-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		fixture, err := loadtest.CreateFixture(filepath.Join(dir, "load.db"), restaurants, 5)
		if err != nil {
			return err
		}
		defer fixture.Close()

		ctx := cmd.Context()
		readStats, err := fixture.RunConcurrentReads(ctx, clients, reads)
		if err != nil {
			return err
		}
		writeReport, err := fixture.RunOfflineWrites(ctx, clients, writes, drainers, failRate)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"reads": readStats, "writes": writeReport}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "%d clients, %d restaurants, %d reviews\n\n", clients, restaurants, fixture.Reviews)
			readStats.Print(out)
			fmt.Fprintln(out)
			writeReport.Print(out)
		}

		if writeReport.Missing != 0 || writeReport.Duplicates != 0 {
			return fmt.Errorf("queue integrity check failed: %d missing, %d duplicated", writeReport.Missing, writeReport.Duplicates)
		}
		return nil
	},
}

func init() {
	loadtestCmd.Flags().Int("clients", 20, "number of concurrent clients")
	loadtestCmd.Flags().Int("reads", 10, "reads per client")
	loadtestCmd.Flags().Int("restaurants", 200, "restaurants in the scratch store")
	loadtestCmd.Flags().Int("writes", 10, "queued reviews per client")
	loadtestCmd.Flags().Int("drainers", 2, "concurrent drain loops")
	loadtestCmd.Flags().Float64("fail-rate", 0.3, "share of API requests that fail during the write phase")
	loadtestCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(loadtestCmd)
}
