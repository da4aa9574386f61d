package schema

import (
	"fmt"

	"github.com/foundry-zero/jsoncheck/internal/report"
)

// ErrorKind classifies a schema failure.
type ErrorKind int

const (
	ReadFailure ErrorKind = iota
	ParseFailure
	FetchFailure
	CompileFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ReadFailure:
		return "read"
	case ParseFailure:
		return "parse"
	case FetchFailure:
		return "fetch"
	case CompileFailure:
		return "compile"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a failure to load or compile a schema.
type Error struct {
	Kind   ErrorKind
	Source Source
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ReadFailure:
		return fmt.Sprintf("failed to read schema file '%s': %v", e.Source, e.Err)
	case ParseFailure:
		return fmt.Sprintf("failed to parse schema from '%s': %v", e.Source, e.Err)
	case FetchFailure:
		return fmt.Sprintf("failed to fetch schema from '%s': %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("failed to compile schema '%s': %v", e.Source, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the diagnostic code for the failure.
func (e *Error) Code() string {
	if e.Kind == CompileFailure {
		return report.CodeCompile
	}
	return report.CodeLoad
}
