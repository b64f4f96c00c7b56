// Package config assembles component configurations from viper-backed
// settings for the CLI commands.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"trade-validation-service/internal/evidence"
	"trade-validation-service/internal/extractor"
	"trade-validation-service/internal/ocr"
	"trade-validation-service/internal/pipeline"
	"trade-validation-service/internal/server"
	"trade-validation-service/pkg/logger"
)

// Settings is the resolved application configuration.
type Settings struct {
	Host              string
	Port              int
	StorePath         string
	UploadDir         string
	MaxFileSize       int64
	CORSOrigins       []string
	OCREndpoint       string
	OCRTimeoutSeconds int
	AnthropicAPIKey   string
	LLMModel          string
	AutoPassThreshold float64
	MinPDFTextLength  int
	MaxPDFOCRPages    int
	LogLevel          string
	LogFormat         string
}

// setDefaults registers the default value for every settings key.
func setDefaults() {
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8000)
	viper.SetDefault("store_path", "data/records.json")
	viper.SetDefault("upload_dir", "data/uploads")
	viper.SetDefault("max_file_size", 10*1024*1024)
	viper.SetDefault("cors_origins", []string{"*"})
	viper.SetDefault("ocr_endpoint", "")
	viper.SetDefault("ocr_timeout_seconds", 60)
	viper.SetDefault("llm_model", extractor.DefaultModel)
	viper.SetDefault("auto_pass_threshold", 0.85)
	viper.SetDefault("min_pdf_text_length", 80)
	viper.SetDefault("max_pdf_ocr_pages", 3)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
}

// Load resolves settings from viper (flags, config file, environment).
func Load() *Settings {
	setDefaults()

	s := &Settings{
		Host:              viper.GetString("host"),
		Port:              viper.GetInt("port"),
		StorePath:         viper.GetString("store_path"),
		UploadDir:         viper.GetString("upload_dir"),
		MaxFileSize:       viper.GetInt64("max_file_size"),
		CORSOrigins:       viper.GetStringSlice("cors_origins"),
		OCREndpoint:       viper.GetString("ocr_endpoint"),
		OCRTimeoutSeconds: viper.GetInt("ocr_timeout_seconds"),
		AnthropicAPIKey:   viper.GetString("anthropic_api_key"),
		LLMModel:          viper.GetString("llm_model"),
		AutoPassThreshold: viper.GetFloat64("auto_pass_threshold"),
		MinPDFTextLength:  viper.GetInt("min_pdf_text_length"),
		MaxPDFOCRPages:    viper.GetInt("max_pdf_ocr_pages"),
		LogLevel:          viper.GetString("log_level"),
		LogFormat:         viper.GetString("log_format"),
	}

	// The plain SDK variable works too, so an existing shell setup carries
	// over without the prefix.
	if s.AnthropicAPIKey == "" {
		s.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return s
}

// Validate checks the settings for obvious misconfiguration.
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.StorePath == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if s.AutoPassThreshold < 0 || s.AutoPassThreshold > 1 {
		return fmt.Errorf("auto pass threshold must be in [0,1], got %v", s.AutoPassThreshold)
	}
	if s.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive")
	}
	return nil
}

// ServerConfig builds the HTTP server configuration.
func (s *Settings) ServerConfig() *server.Config {
	return &server.Config{
		Host:           s.Host,
		Port:           s.Port,
		UploadDir:      s.UploadDir,
		MaxUploadBytes: s.MaxFileSize,
		CORSOrigins:    s.CORSOrigins,
	}
}

// PipelineConfig builds the validation pipeline configuration.
func (s *Settings) PipelineConfig() *pipeline.Config {
	return &pipeline.Config{AutoPassThreshold: s.AutoPassThreshold}
}

// EvidenceConfig builds the evidence normalization configuration.
func (s *Settings) EvidenceConfig() *evidence.Config {
	return &evidence.Config{
		MinPDFTextLength: s.MinPDFTextLength,
		MaxPDFOCRPages:   s.MaxPDFOCRPages,
	}
}

// NewOCRClient builds the OCR service client. An empty endpoint yields a
// client that reports unavailable.
func (s *Settings) NewOCRClient() *ocr.Client {
	return ocr.NewClient(s.OCREndpoint, time.Duration(s.OCRTimeoutSeconds)*time.Second)
}

// NewExtractor builds the extraction adapter: the model-backed extractor
// when an API key is configured, the offline heuristic otherwise.
func (s *Settings) NewExtractor() extractor.Extractor {
	if s.AnthropicAPIKey != "" {
		return extractor.NewLLMExtractor(s.AnthropicAPIKey, s.LLMModel)
	}
	return extractor.NewHeuristicExtractor()
}

// LoggerConfig builds the logging configuration.
func (s *Settings) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.Level(s.LogLevel),
		Format: logger.Format(s.LogFormat),
		Output: logger.StderrOutput,
	}
}
