// Package transport contains the HTTP router, middleware chain, and all
// request handlers of the admin dashboard API.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:           http.StatusBadRequest,
	model.ErrUnauthorized:         http.StatusUnauthorized,
	model.ErrForbidden:            http.StatusForbidden,
	model.ErrNotFound:             http.StatusNotFound,
	model.ErrConflict:             http.StatusConflict,
	model.ErrValidationError:      http.StatusUnprocessableEntity,
	model.ErrConfirmationRequired: http.StatusPreconditionRequired,
	model.ErrRateLimited:          http.StatusTooManyRequests,
	model.ErrInternalError:        http.StatusInternalServerError,
	model.ErrBackendUnavailable:   http.StatusBadGateway,
	model.ErrBackendTimeout:       http.StatusGatewayTimeout,
	model.ErrViewNotFound:         http.StatusNotFound,
	model.ErrFormNotOpen:          http.StatusConflict,
	model.ErrImportInvalid:        http.StatusUnprocessableEntity,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. Errors that do not wrap an *ErrorEnvelope become a
// generic 500. The trace id of r is attached when r is not nil.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	out := *ee
	if out.TraceID == "" && r != nil {
		out.TraceID = observability.TraceIDFromContext(r.Context())
	}
	WriteJSON(w, status, errorResponse{Error: &out})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	WriteError(w, r, model.NewNotFoundError(msg))
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, r *http.Request, msg string) {
	WriteError(w, r, model.NewForbiddenError(msg))
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, r *http.Request, details []model.FieldError) {
	WriteError(w, r, model.NewValidationError(details))
}

// envelopeFor converts the failure of a marketplace call made outside a
// view into a request-level error.
func envelopeFor(f *model.Failure) *model.ErrorEnvelope {
	switch f.Kind {
	case model.FailureTransport:
		return &model.ErrorEnvelope{Code: model.ErrBackendUnavailable, Message: f.Message}
	case model.FailurePrecondition:
		if f.Message == model.MessageMissingToken {
			return model.NewUnauthorizedError(f.Message)
		}
		return model.NewConflictError(f.Message)
	case model.FailureValidation:
		return &model.ErrorEnvelope{Code: model.ErrValidationError, Message: f.Message, Details: f.Details()}
	}

	code := model.ErrBadRequest
	switch {
	case f.StatusCode == http.StatusUnauthorized:
		code = model.ErrUnauthorized
	case f.StatusCode == http.StatusForbidden:
		code = model.ErrForbidden
	case f.StatusCode == http.StatusNotFound:
		code = model.ErrNotFound
	case f.StatusCode == http.StatusConflict:
		code = model.ErrConflict
	case f.StatusCode == http.StatusTooManyRequests:
		code = model.ErrRateLimited
	case f.StatusCode >= 500:
		code = model.ErrBackendUnavailable
	}
	return &model.ErrorEnvelope{Code: code, Message: f.Message, Details: f.Details()}
}
