package cmd

import (
	"fmt"
	"os"

	"membership-billing-service/pkg/errors"
	"membership-billing-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler turns errors into user-facing messages and exit codes.
type CLIErrorHandler struct {
	log     logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates an error handler honoring the verbose flag.
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		log:     logger.Global().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints a friendly rendering of the error and returns the
// process exit code. A nil error returns 0.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.log.WithError(err).Error("Command failed")

	if billingErr, ok := errors.AsBillingError(err); ok {
		return h.handleBillingError(billingErr)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func (h *CLIErrorHandler) handleBillingError(err *errors.BillingError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.ExitCode()
}
