package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"stocktrack/internal/domain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitRejected     = 1 // request refused: validation, duplicate item, insufficient stock
	ExitCommandError = 2 // configuration, persistence or usage problem
)

// ExitError carries the exit code a command failure should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to a process exit code. Rejected requests exit
// with ExitRejected; anything else unclassified is a command error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrDuplicateItem),
		errors.Is(err, domain.ErrInsufficientStock):
		return ExitRejected
	default:
		return ExitCommandError
	}
}

// OutputFormatter writes command results as JSON or as text tables.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope for every result.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Shortfalls []domain.Shortfall `json:"shortfalls,omitempty"`
	Field      string             `json:"field,omitempty"`
}

// Success writes data. In text mode the text callback renders it.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// Error writes a JSON error envelope. Text mode leaves errors to the caller.
func (f *OutputFormatter) Error(err error) error {
	if f.Format != "json" {
		return nil
	}
	cliErr := &CLIError{Code: errorCode(err), Message: err.Error()}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		cliErr.Shortfalls = stockErr.Shortfalls
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		cliErr.Field = validationErr.Field
	}

	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "error", Error: cliErr})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrDuplicateItem):
		return "duplicate_item"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}

// fail reports err through the formatter and returns it for the exit code.
func fail(f *OutputFormatter, err error) error {
	_ = f.Error(err)
	return err
}
