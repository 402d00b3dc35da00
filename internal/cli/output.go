package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rosiefs/rosie/internal/fault"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Engine failure (guard violation, unresolvable plan, failed apply)
	ExitCommandError = 2 // Command error (bad arguments, missing plan, unreadable config)
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
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as plain text or as a JSON
// envelope, per the --format flag.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// response is the JSON envelope for command output.
type response struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *faultBody  `json:"error,omitempty"` // failure details
}

// faultBody carries an engine fault code alongside its message.
type faultBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(response{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail reports a failed engine operation, tagged with its fault code when
// the error carries one.
func (f *OutputFormatter) Fail(err error) error {
	code := string(fault.CodeOf(err))
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(response{
			Status: "error",
			Error:  &faultBody{Code: code, Message: err.Error()},
		})
	}

	if code == "" {
		fmt.Fprintf(f.Writer, "Error: %s\n", err.Error())
		return nil
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, err.Error())
	return nil
}
