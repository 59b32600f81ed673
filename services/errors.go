package services

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrMalformedUpload    = errors.New("malformed upload")

	// ErrInvalidIdentifier is returned for ids that are not 24-hex ObjectIDs.
	ErrInvalidIdentifier = errors.New("invalid post id")
	// ErrNotFound is returned when no post matches a well-formed id.
	ErrNotFound = errors.New("post not found")
)

// ValidationError is a client mistake; Message is safe to return verbatim.
type ValidationError struct {
	// Fields lists missing field names in title, author, content order.
	Fields  []string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func missingFields(fields []string) *ValidationError {
	return &ValidationError{
		Fields:  fields,
		Message: "title, author, and content are required",
		Err:     ErrMissingFields,
	}
}

// TooManyAttachments builds the error used for uploads beyond max files.
func TooManyAttachments(max int) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf("Maximum %d attachments.", max),
		Err:     ErrTooManyAttachments,
	}
}

// MalformedUpload wraps a multipart decoding failure.
func MalformedUpload(cause error) *ValidationError {
	return &ValidationError{
		Message: "Invalid multipart form: " + cause.Error(),
		Err:     fmt.Errorf("%w: %v", ErrMalformedUpload, cause),
	}
}

// StorageError is a server side failure of the attachment store or database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
