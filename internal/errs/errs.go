// Package errs defines the engine's error taxonomy and maps transport-level
// failures onto actionable, user-facing guidance with a stable code for
// support reference.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the engine's error categories.
type Kind string

const (
	KindSchemaNotFound     Kind = "SchemaNotFound"
	KindMissingIdColumn    Kind = "MissingIdColumn"
	KindUnknownMappingObj  Kind = "UnknownMappingObject"
	KindTransport          Kind = "TransportError"
	KindCsvParse           Kind = "CsvParseError"
)

// Error is the engine's sentinel error type, constructed through one of the
// New* helpers below. Per-record failures and blocked rows are not errors.
// A SchemaClient.Describe failure that is not followed by a namespace retry
// reaches the caller wrapped with fmt.Errorf, not as an *Error.
type Error struct {
	Kind    Kind
	Code    string
	Object  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("%s [%s]: %s (object=%s)", e.Kind, e.Code, e.Message, e.Object)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewSchemaNotFound builds a SchemaNotFound error for object.
func NewSchemaNotFound(object string) *Error {
	return &Error{Kind: KindSchemaNotFound, Code: "SCHEMA001", Object: object, Message: "object schema not found"}
}

// NewMissingIdColumn builds a MissingIdColumn error: the dataset for object
// has no header mapping to a field of type id.
func NewMissingIdColumn(object string) *Error {
	return &Error{Kind: KindMissingIdColumn, Code: "LOAD001", Object: object, Message: "no id column found in dataset"}
}

// NewUnknownMappingObject builds an UnknownMappingObject error: a mapping
// policy refers to an object with no corresponding input dataset.
func NewUnknownMappingObject(object string) *Error {
	return &Error{Kind: KindUnknownMappingObj, Code: "MAP001", Object: object, Message: "mapping policy refers to an object with no input dataset"}
}

// NewTransport wraps a remote-call failure (query/create).
func NewTransport(object string, cause error) *Error {
	return &Error{Kind: KindTransport, Code: "XPORT001", Object: object, Message: "remote call failed", Cause: cause}
}

// NewCsvParse wraps a CSV parsing failure.
func NewCsvParse(cause error) *Error {
	return &Error{Kind: KindCsvParse, Code: "CSV001", Message: "invalid CSV input", Cause: cause}
}

// notFoundMarker is implemented by errors that represent a "not found"
// response from SchemaClient.Describe, distinct from a transport failure.
type notFoundMarker interface{ NotFound() bool }

// notFoundError is the concrete notFoundMarker used by ErrNotFound.
type notFoundError struct{ msg string }

func (e *notFoundError) Error() string  { return e.msg }
func (e *notFoundError) NotFound() bool { return true }

// ErrNotFound, wrapped or returned directly by a SchemaClient, signals that
// the requested object does not exist on the remote instance.
var ErrNotFound = &notFoundError{msg: "object not found"}

// IsNotFound reports whether err (or anything it wraps) represents a
// not-found response.
func IsNotFound(err error) bool {
	var m notFoundMarker
	return errors.As(err, &m) && m.NotFound()
}

// UserMessage is a human-actionable description of a technical error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type pattern struct {
	substr string
	msg    UserMessage
}

// patterns maps technical, lowercase error substrings to guidance. More
// specific patterns are listed before general ones; the first match wins.
var patterns = []pattern{
	{"context deadline exceeded", UserMessage{"The remote call timed out", "Retry with a longer timeout or a smaller batch", "XPORT001"}},
	{"context canceled", UserMessage{"The run was cancelled", "Start a new run when ready", "XPORT002"}},
	{"connection refused", UserMessage{"Unable to reach the remote service", "Check connectivity and try again", "XPORT003"}},
	{"connection reset", UserMessage{"The connection to the remote service was interrupted", "Retry the run", "XPORT004"}},
	{"timeout", UserMessage{"The remote call timed out", "Retry with a longer timeout or a smaller batch", "XPORT005"}},
	{"rate limit", UserMessage{"The remote service is throttling requests", "Reduce concurrency and retry", "XPORT006"}},
	{"unauthorized", UserMessage{"The remote service rejected the credentials", "Re-authenticate and retry", "XPORT007"}},
	{"duplicate value", UserMessage{"A record with this unique key already exists on the target", "Review the mapping policy for this object", "MAP002"}},
	{"required field", UserMessage{"A required field was left empty", "Check the mapped value for this column", "LOAD002"}},
	{"invalid cross reference", UserMessage{"A reference field pointed at a record the target does not recognize", "Confirm the referenced object was uploaded first", "LOAD003"}},
}

// Describe pattern-matches err's message against known transport failure
// substrings and returns actionable guidance, or a generic message with
// code ERR000 if nothing matches.
func Describe(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(lower, p.substr) {
			return p.msg
		}
	}
	return UserMessage{Message: err.Error(), Action: "Check the run log for details", Code: "ERR000"}
}
