// Package errors provides the structured error type (BuildError) used for
// category-based classification across the build pipeline and CLI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a build error for classification.
type ErrorCategory string

const (
	// User-facing configuration and input errors. Fatal before any
	// renderer invocation.
	CategoryConfig ErrorCategory = "config"

	// Deprecated or malformed book markup. Fatal for the whole build.
	CategoryMarkup ErrorCategory = "markup"

	// Renderer failures (parse, convert, external engine non-zero exit).
	// Fatal for the requesting target only.
	CategoryRender ErrorCategory = "render"

	// Artifact post-processing failures (toc rewrite, style inlining).
	// Fatal for the requesting target only; artifact is rolled back.
	CategoryPostProcess ErrorCategory = "postprocess"

	// Incremental-state record failures.
	CategoryState ErrorCategory = "state"

	// Everything else.
	CategoryInternal ErrorCategory = "internal"
)

// BuildError is a structured error with category and offending-file context.
type BuildError struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
	Path     string        `json:"path,omitempty"`
	Cause    error         `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s (file: %s)", msg, e.Path)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, msg)
}

// Unwrap implements error unwrapping.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithPath records the offending file on the error.
func (e *BuildError) WithPath(path string) *BuildError {
	e.Path = path
	return e
}

// New creates a new BuildError.
func New(category ErrorCategory, message string) *BuildError {
	return &BuildError{Category: category, Message: message}
}

// Newf creates a new BuildError with a formatted message.
func Newf(category ErrorCategory, format string, args ...any) *BuildError {
	return &BuildError{Category: category, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new BuildError that wraps an existing error.
func Wrap(err error, category ErrorCategory, message string) *BuildError {
	return &BuildError{Category: category, Message: message, Cause: err}
}

// IsCategory checks whether an error (anywhere in its chain) belongs to a
// specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or CategoryInternal if
// the error is not a BuildError.
func GetCategory(err error) ErrorCategory {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Category
	}
	return CategoryInternal
}

// Configuration creates a configuration error (missing required file,
// malformed metadata, absolute/remote image reference).
func Configuration(message string) *BuildError {
	return New(CategoryConfig, message)
}

// DeprecatedMarkup creates a markup error for the removed forced-page-break
// directive.
func DeprecatedMarkup(message string) *BuildError {
	return New(CategoryMarkup, message)
}

// Render creates a renderer error.
func Render(message string) *BuildError {
	return New(CategoryRender, message)
}

// PostProcess creates an artifact post-processing error.
func PostProcess(message string) *BuildError {
	return New(CategoryPostProcess, message)
}
