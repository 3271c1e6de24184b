package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bouncepath/internal/report"
	"github.com/cwbudde/bouncepath/internal/store"
)

var (
	outcomesLedger string
	outcomesJSON   bool
)

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "List recorded vacuum pair outcomes",
	Long: `Prints every outcome in the ledger, newest first. Failed pairs are
listed with the reason they failed.`,
	RunE: runOutcomes,
}

func init() {
	outcomesCmd.Flags().StringVar(&outcomesLedger, "ledger", filepath.Join("data", "outcomes.db"), "Outcome ledger path")
	outcomesCmd.Flags().BoolVar(&outcomesJSON, "json", false, "Print outcomes as JSON")
	rootCmd.AddCommand(outcomesCmd)
}

func runOutcomes(cmd *cobra.Command, args []string) error {
	ledger, err := store.OpenLedger(outcomesLedger)
	if err != nil {
		return fmt.Errorf("failed to open outcome ledger: %w", err)
	}
	defer ledger.Close()

	outcomes, err := ledger.ListOutcomes()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outcomesJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(outcomes)
	}
	report.PrintOutcomes(out, outcomes)
	return nil
}
