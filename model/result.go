package model

import (
	"fmt"
	"sort"
	"strings"
)

// FailureKind classifies why a marketplace operation did not succeed.
type FailureKind string

const (
	// FailureTransport covers connection, DNS, timeout and open-breaker errors.
	FailureTransport FailureKind = "transport"
	// FailureServerRejection is a 4xx/5xx answer carrying a structured body.
	FailureServerRejection FailureKind = "server_rejection"
	// FailureValidation is a server rejection with per-field messages.
	FailureValidation FailureKind = "validation"
	// FailurePrecondition is raised client-side before any network call,
	// e.g. a missing bearer token or a row that already has an action in flight.
	FailurePrecondition FailureKind = "precondition"
)

// Generic messages used when the server does not provide one.
const (
	MessageTransportFailure = "Unable to reach the marketplace service. Please try again."
	MessageServerFailure    = "The request could not be completed."
	MessageMissingToken     = "You are not signed in. Please sign in again."
	MessageRowBusy          = "Another action on this row is still in progress."
)

// Failure is the normalized error of a marketplace operation. It is the
// only error shape that leaves the resource client.
type Failure struct {
	Kind        FailureKind         `json:"kind"`
	Message     string              `json:"message"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
	StatusCode  int                 `json:"status_code,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", f.Kind, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// FieldNames returns the names of fields carrying errors, sorted.
func (f *Failure) FieldNames() []string {
	names := make([]string, 0, len(f.FieldErrors))
	for k := range f.FieldErrors {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Details converts the field errors into FieldError entries, one per message.
func (f *Failure) Details() []FieldError {
	var out []FieldError
	for _, name := range f.FieldNames() {
		for _, msg := range f.FieldErrors[name] {
			out = append(out, FieldError{Field: name, Code: strings.ToUpper(string(f.Kind)), Message: msg})
		}
	}
	return out
}

// NewTransportFailure returns a transport failure with the generic message.
func NewTransportFailure() *Failure {
	return &Failure{Kind: FailureTransport, Message: MessageTransportFailure}
}

// NewPreconditionFailure returns a failure raised before any network call.
func NewPreconditionFailure(msg string) *Failure {
	return &Failure{Kind: FailurePrecondition, Message: msg}
}

// Result is the outcome of a marketplace operation: either Data is valid
// (Failure is nil) or Failure describes what went wrong.
type Result[T any] struct {
	Data    T
	Failure *Failure
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool {
	return r.Failure == nil
}

// Succeed wraps data in a successful Result.
func Succeed[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

// Fail wraps a failure in a Result.
func Fail[T any](f *Failure) Result[T] {
	return Result[T]{Failure: f}
}

// ListResult is one page of a remote collection.
type ListResult[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// TotalPagesFor returns ceil(totalItems / pageSize), or 0 when either is
// not positive.
func TotalPagesFor(totalItems, pageSize int) int {
	if totalItems <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

// Payload carries form values sent on create and update.
type Payload map[string]any

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
