package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"trade-validation-service/cmd/tradevalidator/config"
	"trade-validation-service/internal/parsers"
	"trade-validation-service/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <trades.csv>",
	Short: "Import book-of-record trades from a CSV file",
	Long: `Import loads TRS trades from a CSV file into the record store.
Rows that fail to parse or validate are reported and skipped; the valid
rows still import.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	settings := config.Load()
	configureLogging(settings)

	recordStore, err := store.NewStore(settings.StorePath)
	if err != nil {
		return NewCLIErrorHandler().AsCommandError(err)
	}

	parser := parsers.NewTradeParser()
	trades, stats, err := parser.ParseFile(args[0])
	if err != nil {
		return NewCLIErrorHandler().AsCommandError(err)
	}

	imported, err := recordStore.ImportTrades(trades)
	if err != nil {
		return NewCLIErrorHandler().AsCommandError(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d trades (%s)\n", imported, stats)
	for _, sample := range stats.SampleErrors(10) {
		fmt.Fprintf(cmd.ErrOrStderr(), "  skipped: %s\n", sample)
	}
	return nil
}
