package native

import (
	"errors"
	"fmt"

	"github.com/ravilang/ravijit/internal/artifact"
)

// LinkErrorKind classifies a LinkError.
type LinkErrorKind byte

const (
	// LinkErrorKindBackendFailure means the backend rejected or failed to compile the code.
	LinkErrorKindBackendFailure LinkErrorKind = iota
	// LinkErrorKindEntryNotFound means the unit did not define exactly one entry with the requested name.
	LinkErrorKindEntryNotFound
	// LinkErrorKindUnresolvedSymbol means the unit referenced a symbol missing from the registry.
	LinkErrorKindUnresolvedSymbol
)

func (k LinkErrorKind) String() string {
	switch k {
	case LinkErrorKindBackendFailure:
		return "backend failure"
	case LinkErrorKindEntryNotFound:
		return "entry not found"
	case LinkErrorKindUnresolvedSymbol:
		return "unresolved symbol"
	}
	return fmt.Sprintf("unknown(%d)", byte(k))
}

var (
	// ErrBackendFailure matches a LinkError of LinkErrorKindBackendFailure with errors.Is.
	ErrBackendFailure = errors.New("backend failure")
	// ErrEntryNotFound matches a LinkError of LinkErrorKindEntryNotFound with errors.Is.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrUnresolvedSymbol matches a LinkError of LinkErrorKindUnresolvedSymbol with errors.Is.
	ErrUnresolvedSymbol = errors.New("unresolved symbol")

	// ErrReleased is returned when invoking an EntryPoint after its release.
	ErrReleased = artifact.ErrReleased
)

// LinkError is returned by Adapter.LinkAndGenerate.
type LinkError struct {
	Kind LinkErrorKind
	// Entry is the unique name of the function being linked.
	Entry string
	// Symbol is set for LinkErrorKindUnresolvedSymbol.
	Symbol string
	// Err is the underlying backend error, if any.
	Err error
}

// Error implements error.
func (e *LinkError) Error() string {
	msg := fmt.Sprintf("link %s: %s", e.Entry, e.Kind)
	if e.Symbol != "" {
		msg += ": " + e.Symbol
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying backend error.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is against ErrBackendFailure, ErrEntryNotFound and ErrUnresolvedSymbol.
func (e *LinkError) Is(target error) bool {
	switch target {
	case ErrBackendFailure:
		return e.Kind == LinkErrorKindBackendFailure
	case ErrEntryNotFound:
		return e.Kind == LinkErrorKindEntryNotFound
	case ErrUnresolvedSymbol:
		return e.Kind == LinkErrorKindUnresolvedSymbol
	}
	return false
}
