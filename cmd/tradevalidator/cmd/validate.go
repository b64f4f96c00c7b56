package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"trade-validation-service/cmd/tradevalidator/config"
	"trade-validation-service/internal/evidence"
	"trade-validation-service/internal/models"
	"trade-validation-service/internal/pipeline"
	"trade-validation-service/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate <evidence-file>",
	Short: "Validate one confirmation document against the record store",
	Long: `Validate runs the full pipeline over a single evidence file:
normalize, extract, compare against the stored trades, and print the
validation result as JSON. The document and its result are persisted in
the record store like an API-driven run.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	settings := config.Load()
	configureLogging(settings)
	handler := NewCLIErrorHandler()

	filePath := args[0]
	fileType, err := models.ResolveFileType(filePath)
	if err != nil {
		return handler.AsCommandError(err)
	}

	recordStore, err := store.NewStore(settings.StorePath)
	if err != nil {
		return handler.AsCommandError(err)
	}

	ocrClient := settings.NewOCRClient()
	processor := evidence.NewProcessor(settings.EvidenceConfig(), ocrClient)
	p := pipeline.New(recordStore, processor, settings.NewExtractor(), settings.PipelineConfig())

	doc := models.NewDocument(filepath.Base(filePath), fileType)
	doc.FilePath = filePath
	if _, err := recordStore.CreateDocument(doc); err != nil {
		return handler.AsCommandError(err)
	}

	if _, err := p.ExtractDocument(cmd.Context(), doc.ID); err != nil {
		return handler.AsCommandError(err)
	}
	validated, err := p.ValidateDocument(cmd.Context(), doc.ID)
	if err != nil {
		return handler.AsCommandError(err)
	}

	encoded, err := json.MarshalIndent(validated.ValidationResult, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
