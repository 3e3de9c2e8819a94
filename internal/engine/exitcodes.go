package engine

import (
	"errors"
	"fmt"
)

// ExitCode is a numbered, symbolic failure surfaced to callers.
type ExitCode struct {
	Status  int
	Name    string
	Message string
}

func (c ExitCode) String() string {
	return fmt.Sprintf("%d %s", c.Status, c.Name)
}

var (
	IncorrectInputParameter = ExitCode{201, "INCORRECT_INPUT_PARAMETER", "One of the input parameters is not formatted correctly."}
	NoRunTypeSpecified      = ExitCode{202, "NO_RUN_TYPE_SPECIFIED", "No run type was specified in the input parameters."}
	MissingOutputFiles      = ExitCode{301, "ERROR_MISSING_OUTPUT_FILES", "Expected output files were not retrieved."}
	OutputStdoutIncomplete  = ExitCode{312, "ERROR_OUTPUT_STDOUT_INCOMPLETE", "The output was retrieved but the completion sentinel is missing."}
	OutputParsingFailed     = ExitCode{313, "ERROR_OUTPUT_PARSING", "The output was complete but could not be parsed."}
	CalculationFailed       = ExitCode{401, "INQ_CALCULATION_FAILED", "An INQ calculation of the sweep failed."}
)

// CodeError attaches an exit code to an underlying cause.
type CodeError struct {
	Code ExitCode
	Err  error
}

func (e *CodeError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// Errorf builds a CodeError with a formatted cause.
func Errorf(code ExitCode, format string, args ...any) error {
	return &CodeError{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the exit code from err, if any.
func CodeOf(err error) (ExitCode, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return ExitCode{}, false
}
