package dto

import "net/http"

// Transport-level error codes. Domain errors carry their own codes; these
// cover failures that never reach a service.
const (
	// ErrCodeInternal is used for unexpected server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeRequestTooLarge is used when the request body exceeds the limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes, domain and transport alike, to
// HTTP status codes. Rejected business operations are 422; losing a write
// race is 409 and worth retrying, unlike a rejection.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Malformed or out-of-range input -> 400 Bad Request
	"INVALID_INPUT":            http.StatusBadRequest,
	"INVALID_AMOUNT":           http.StatusBadRequest,
	"INVALID_CURRENCY":         http.StatusBadRequest,
	"INVALID_DATE":             http.StatusBadRequest,
	"INVALID_DISCOUNT":         http.StatusBadRequest,
	"INVALID_ITEM":             http.StatusBadRequest,
	"INVALID_TAX_RATE":         http.StatusBadRequest,
	"INVALID_INVOICE_NUMBER":   http.StatusBadRequest,
	"INVALID_CLIENT":           http.StatusBadRequest,
	"INVALID_CATEGORY":         http.StatusBadRequest,
	"INVALID_TRANSACTION_TYPE": http.StatusBadRequest,
	"INVALID_PAYMENT_METHOD":   http.StatusBadRequest,
	"INVALID_PERIOD":           http.StatusBadRequest,
	"INVALID_SCHEDULE":         http.StatusBadRequest,

	// Missing resources -> 404 Not Found
	"NOT_FOUND":        http.StatusNotFound,
	"CLIENT_NOT_FOUND": http.StatusNotFound,

	// Business rule rejections -> 422 Unprocessable Entity
	"INVALID_STATE":        http.StatusUnprocessableEntity,
	"OVERPAYMENT_REJECTED": http.StatusUnprocessableEntity,
	"REFUND_NOT_ELIGIBLE":  http.StatusUnprocessableEntity,
	"CURRENCY_MISMATCH":    http.StatusUnprocessableEntity,

	// Write conflicts -> 409 Conflict
	"ALREADY_EXISTS":        http.StatusConflict,
	"DUPLICATE_REQUEST":     http.StatusConflict,
	"OPTIMISTIC_LOCK_ERROR": http.StatusConflict,
	"LEDGER_CONTENTION":     http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status for an error code, defaulting to
// 500 for codes the map does not know
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
