package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trade-validation-service/cmd/tradevalidator/config"
	"trade-validation-service/internal/evidence"
	"trade-validation-service/internal/pipeline"
	"trade-validation-service/internal/server"
	"trade-validation-service/internal/store"
	"trade-validation-service/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the validation API server",
	Long: `Serve starts the HTTP API for document upload, extraction,
validation and the checker workflow. The server shuts down gracefully on
SIGINT/SIGTERM, draining in-flight requests first.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "listen address")
	serveCmd.Flags().Int("port", 8000, "listen port")
	serveCmd.Flags().String("upload-dir", "data/uploads", "directory for uploaded evidence files")
	serveCmd.Flags().String("ocr-endpoint", "", "OCR service endpoint (empty disables OCR)")
	serveCmd.Flags().String("llm-model", "", "language model for extraction")
	serveCmd.Flags().Float64("auto-pass-threshold", 0.85, "machine confidence above which a clean match auto-approves")

	viper.BindPFlag("host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("upload_dir", serveCmd.Flags().Lookup("upload-dir"))
	viper.BindPFlag("ocr_endpoint", serveCmd.Flags().Lookup("ocr-endpoint"))
	viper.BindPFlag("llm_model", serveCmd.Flags().Lookup("llm-model"))
	viper.BindPFlag("auto_pass_threshold", serveCmd.Flags().Lookup("auto-pass-threshold"))
}

func runServe(cmd *cobra.Command, args []string) error {
	settings := config.Load()
	if err := settings.Validate(); err != nil {
		return err
	}
	configureLogging(settings)

	recordStore, err := store.NewStore(settings.StorePath)
	if err != nil {
		return err
	}

	ocrClient := settings.NewOCRClient()
	processor := evidence.NewProcessor(settings.EvidenceConfig(), ocrClient)
	p := pipeline.New(recordStore, processor, settings.NewExtractor(), settings.PipelineConfig())
	srv := server.NewServer(settings.ServerConfig(), recordStore, p, ocrClient)

	log := logger.WithComponent("serve")
	log.WithFields(logger.Fields{
		"store":         settings.StorePath,
		"ocr_available": ocrClient.Available(),
		"llm_backed":    settings.AnthropicAPIKey != "",
	}).Info("Configuration resolved")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// configureLogging applies the logging settings, with --verbose forcing
// debug level.
func configureLogging(settings *config.Settings) {
	cfg := settings.LoggerConfig()
	if viper.GetBool("verbose") {
		cfg.Level = "debug"
	}
	if log, err := logger.NewLogger(cfg); err == nil {
		logger.SetGlobalLogger(log)
	}
}
