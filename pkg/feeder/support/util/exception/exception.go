// Package exception provides the error taxonomy of the feeder.
// Every fatal failure is a *FeederError carrying the module it came from and a Kind sentinel,
// so callers classify with errors.Is(err, exception.ErrLoad) and the like.
// An empty chunk domain and a lookup miss are normal outcomes and have no error kind.
package exception

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Kind sentinels. A FeederError matches exactly one of them through errors.Is.
var (
	// ErrSourceQuery marks an unreachable source store or a malformed source query.
	ErrSourceQuery = errors.New("source query error")
	// ErrTransform marks a collate or postprocess step that failed.
	ErrTransform = errors.New("transform error")
	// ErrArtifact marks a failure to write, publish or read an extraction artifact.
	ErrArtifact = errors.New("artifact error")
	// ErrLoad marks a destination delete, bulk insert or DDL failure.
	ErrLoad = errors.New("load error")
	// ErrConfig marks invalid configuration or job definitions.
	ErrConfig = errors.New("config error")
)

// FeederError is the error type returned by extraction, loading and configuration.
type FeederError struct {
	// Module is where the error occurred (e.g. "extractor", "loader", "artifact", "config").
	Module string
	// Kind is one of the sentinels above.
	Kind error
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
}

// NewFeederError creates a FeederError of the given kind.
func NewFeederError(module string, kind error, message string, originalErr error) *FeederError {
	return &FeederError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// NewSourceQueryError wraps a source store failure.
func NewSourceQueryError(module, message string, err error) *FeederError {
	return NewFeederError(module, ErrSourceQuery, message, err)
}

// NewTransformError wraps a failed collate or postprocess step.
func NewTransformError(module, message string, err error) *FeederError {
	return NewFeederError(module, ErrTransform, message, err)
}

// NewArtifactError wraps an artifact I/O failure.
func NewArtifactError(module, message string, err error) *FeederError {
	return NewFeederError(module, ErrArtifact, message, err)
}

// NewLoadError wraps a destination store failure.
func NewLoadError(module, message string, err error) *FeederError {
	return NewFeederError(module, ErrLoad, message, err)
}

// NewConfigError wraps a configuration problem.
func NewConfigError(module, message string, err error) *FeederError {
	return NewFeederError(module, ErrConfig, message, err)
}

// Errorf builds a FeederError with a formatted message and no cause.
func Errorf(module string, kind error, format string, a ...interface{}) *FeederError {
	return NewFeederError(module, kind, fmt.Sprintf(format, a...), nil)
}

// Error implements the error interface.
func (e *FeederError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *FeederError) Unwrap() error {
	return e.OriginalErr
}

// Is reports whether target is this error's Kind.
func (e *FeederError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// IsFeederError reports whether err is, or wraps, a *FeederError.
func IsFeederError(err error) bool {
	var fe *FeederError
	return errors.As(err, &fe)
}

// KindOf returns the Kind of the outermost FeederError in err's chain, or nil.
func KindOf(err error) error {
	var fe *FeederError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return nil
}

// ExtractErrorMessage returns the FeederError message when available, otherwise err.Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FeederError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// Append collects errors into a *multierror.Error, skipping nils.
// It returns nil when nothing was appended.
func Append(err error, errs ...error) error {
	var merr *multierror.Error
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	for _, e := range errs {
		if e != nil {
			merr = multierror.Append(merr, e)
		}
	}
	return merr.ErrorOrNil()
}
