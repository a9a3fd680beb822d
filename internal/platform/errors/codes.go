// Package errors provides structured error handling for the service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Ceremony errors
	CodeNoPendingCeremony      Code = "NO_PENDING_CEREMONY"
	CodeVerificationFailed     Code = "VERIFICATION_FAILED"
	CodeAuthenticationRejected Code = "AUTHENTICATION_REJECTED"
	CodeUnknownUser            Code = "UNKNOWN_USER"

	// Storage errors
	CodeNotFound            Code = "NOT_FOUND"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"

	// Access errors
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	// Request lifecycle errors
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps an error code to the HTTP status the web layer responds with.
//
// Protocol and policy failures map to 400 on purpose: the response body never
// distinguishes an unknown user from a failed verification, so the status must
// not either.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNoPendingCeremony, CodeVerificationFailed, CodeAuthenticationRejected, CodeUnknownUser:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConstraintViolation:
		return http.StatusConflict
	case CodeInternal, CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
