package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Run completed with failures and --fail-on-error was set
	ExitCommandError = 2 // Command error (bad config, store cannot be opened, etc.)
)

// Error codes reported in structured output.
const (
	ErrCodeConfig       = "E002" // Configuration invalid
	ErrCodeStore        = "E003" // Record store cannot be opened or read
	ErrCodePool         = "E004" // Example pool cannot be loaded
	ErrCodeInvalidInput = "E005" // Rejected argument
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text, JSON or YAML.
// Verbose adds error details to text output.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the envelope for structured output.
type CLIResponse struct {
	Status string    `json:"status" yaml:"status"`                   // "ok" or "error"
	Data   any       `json:"data,omitempty" yaml:"data,omitempty"`   // success payload
	Error  *CLIError `json:"error,omitempty" yaml:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code" yaml:"code"`                           // "E002", "E003", etc.
	Message string `json:"message" yaml:"message"`                     // human-readable message
	Details any    `json:"details,omitempty" yaml:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output prints data with fmt, so payloads implement fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	switch f.Format {
	case "json", "yaml":
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	switch f.Format {
	case "json", "yaml":
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	if f.Format == "yaml" {
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return enc.Close()
	}
	return json.NewEncoder(f.Writer).Encode(resp)
}

// fail reports err through the formatter and returns it as a command error.
func fail(f *OutputFormatter, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	if outErr := f.Error(code, message, details); outErr != nil {
		return WrapExitError(ExitCommandError, "write output", outErr)
	}
	return WrapExitError(ExitCommandError, message, err)
}
