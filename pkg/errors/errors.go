// Package errors defines the error taxonomy shared by the download manager
// packages. Callers classify failures with errors.Is against the sentinels
// below; everything else is context added through Wrap/Wrapf.
package errors

import "fmt"

// Common error types.
var (
	// Network and server errors.
	ErrNetwork      = fmt.Errorf("network failure")
	ErrServerStatus = fmt.Errorf("unexpected server status")
	ErrCancelled    = fmt.Errorf("operation cancelled")
	ErrInvalidURL   = fmt.Errorf("invalid resource URL")

	// Local storage errors.
	ErrLocalStorage  = fmt.Errorf("local storage failure")
	ErrResourceEmpty = fmt.Errorf("resource not found in any local tier")

	// Ledger errors.
	ErrLedgerCorrupt = fmt.Errorf("expiration ledger unreadable")

	// Batch errors.
	ErrBatchBusy  = fmt.Errorf("a batch operation is already processing")
	ErrBatchEmpty = fmt.Errorf("no size-check has queued any download")

	// Bundle errors.
	ErrBundleMissing = fmt.Errorf("seed bundle not found")

	// Config errors.
	ErrEmptyConfigPath  = fmt.Errorf("config file path cannot be empty")
	ErrConfigParse      = fmt.Errorf("failed to parse config")
	ErrConfigValidation = fmt.Errorf("invalid configuration")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
