package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FieldServer is the field name the marketplace uses for non-domain failures.
const FieldServer = "server"

// GenericServerMessage is shown in place of any server-side failure detail.
const GenericServerMessage = "Something is wrong, please try again"

const internalServerError = "internal server error"

type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindServer
	KindAuth
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	case KindPrecondition:
		return "precondition"
	default:
		return "none"
	}
}

type FieldError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// APIError is a failed marketplace call.
type APIError struct {
	Status int
	Errors []FieldError
	Cause  error
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Detail)
	}
	msg := fmt.Sprintf("marketplace error (status %d): %s", e.Status, strings.Join(parts, "; "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func (e *APIError) isServer() bool {
	if e.Status == 0 || e.Status >= http.StatusInternalServerError || len(e.Errors) == 0 {
		return true
	}
	for _, fe := range e.Errors {
		if fe.Field == FieldServer {
			return true
		}
	}
	return false
}

// ServerErrors is the error list used when no usable response arrived.
func ServerErrors() []FieldError {
	return []FieldError{{Field: FieldServer, Detail: internalServerError}}
}

// Transport wraps a failure that produced no response at all.
func Transport(err error) *APIError {
	return &APIError{Errors: ServerErrors(), Cause: err}
}

// FromResponse decodes the `{"error":[{field,detail}]}` body of a failed call.
// Bodies that do not decode are treated as server errors.
func FromResponse(status int, body []byte) *APIError {
	var envelope struct {
		Error []FieldError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return &APIError{Status: status, Errors: ServerErrors()}
	}
	return &APIError{Status: status, Errors: envelope.Error}
}

// PreconditionError is raised locally, before any network call.
type PreconditionError struct {
	Field  string
	Detail string
}

func (e *PreconditionError) Error() string {
	return e.Field + ": " + e.Detail
}

func NewPrecondition(field, detail string) *PreconditionError {
	return &PreconditionError{Field: field, Detail: detail}
}

var ErrUnauthorized = errors.New("unauthorized")

// Classify maps any error to one of the four kinds handled by callers.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var pre *PreconditionError
	if errors.As(err, &pre) {
		return KindPrecondition
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindAuth
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return KindAuth
		case apiErr.isServer():
			return KindServer
		default:
			return KindValidation
		}
	}

	return KindServer
}

// Display returns the field errors safe to show to the buyer.
func Display(err error) []FieldError {
	switch Classify(err) {
	case KindNone:
		return nil
	case KindPrecondition:
		var pre *PreconditionError
		errors.As(err, &pre)
		return []FieldError{{Field: pre.Field, Detail: pre.Detail}}
	case KindAuth:
		return []FieldError{{Field: "auth", Detail: "session expired, please log in again"}}
	case KindValidation:
		var apiErr *APIError
		errors.As(err, &apiErr)
		out := make([]FieldError, len(apiErr.Errors))
		copy(out, apiErr.Errors)
		return out
	default:
		return []FieldError{{Field: FieldServer, Detail: GenericServerMessage}}
	}
}
