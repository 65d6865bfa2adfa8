package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeExtraction  ErrorType = "extraction"
	ErrorTypeNoImages    ErrorType = "no_images"
	ErrorTypeExplanation ErrorType = "explanation"
	ErrorTypeSynthesis   ErrorType = "synthesis"
	ErrorTypeRender      ErrorType = "render"
	ErrorTypeEncoding    ErrorType = "encoding"
	ErrorTypeCancelled   ErrorType = "cancelled"
)

// DomainError represents a domain-specific error with context.
// Stage names the pipeline state the error surfaced in, Image the figure it
// concerns, and Segments the segments built before an encoding failure.
type DomainError struct {
	Type     ErrorType
	Stage    string
	Message  string
	Image    *ImageID
	Segments []SegmentSummary
	Err      error
}

func (e *DomainError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Type)
	if e.Stage != "" {
		prefix = fmt.Sprintf("[%s/%s]", e.Stage, e.Type)
	}
	msg := e.Message
	if e.Image != nil {
		msg = fmt.Sprintf("%s (%s)", msg, e.Image)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, msg, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, msg)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithStage sets the stage and returns the error
func (e *DomainError) WithStage(stage string) *DomainError {
	e.Stage = stage
	return e
}

// WithImage sets the image identity and returns the error
func (e *DomainError) WithImage(id ImageID) *DomainError {
	e.Image = &id
	return e
}

// WithSegments attaches the partial segment list and returns the error
func (e *DomainError) WithSegments(segments []SegmentSummary) *DomainError {
	e.Segments = segments
	return e
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func ExtractionError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtraction, message, err)
}

func ExplanationError(message string, err error) *DomainError {
	return NewError(ErrorTypeExplanation, message, err)
}

func SynthesisError(message string, err error) *DomainError {
	return NewError(ErrorTypeSynthesis, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func EncodingError(message string, err error) *DomainError {
	return NewError(ErrorTypeEncoding, message, err)
}

func CancelledError(message string, err error) *DomainError {
	return NewError(ErrorTypeCancelled, message, err)
}

// ErrNoImagesFound is returned when a document has no embedded images
var ErrNoImagesFound = NewError(ErrorTypeNoImages, "no images found in the document", nil)

// ErrUndecodableImage marks an embedded image whose encoding cannot be
// converted faithfully. Extraction fails instead of dropping the figure.
var ErrUndecodableImage = errors.New("undecodable image")

// IsType reports whether err is, or wraps, a DomainError of the given type
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// TransientError marks a failure that may succeed when retried
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was marked retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
