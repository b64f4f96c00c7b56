package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// AsCommandError prints the detailed context of an application error to
// stderr and returns a concise error for cobra to surface.
func (h *CLIErrorHandler) AsCommandError(err error) error {
	if err == nil {
		return nil
	}

	h.logger.WithError(err).Error("Command failed")

	ve, ok := apperrors.AsValidatorError(err)
	if !ok {
		return err
	}

	if len(ve.Context) > 0 {
		fmt.Fprintf(os.Stderr, "Context:\n")
		for key, value := range ve.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}
	if ve.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "Suggestion: %s\n", ve.Suggestion)
	}
	if h.verbose && ve.Cause != nil {
		fmt.Fprintf(os.Stderr, "Underlying error: %v\n", ve.Cause)
	}

	return fmt.Errorf("%s", ve.Message)
}

// ExitCode maps an error to the process exit code.
func (h *CLIErrorHandler) ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ve, ok := apperrors.AsValidatorError(err); ok {
		return ve.GetExitCode()
	}
	return 1
}
