// Package core provides error code definitions and error handling utilities
package core

import "net/http"

// ErrorCode represents an error code type
type ErrorCode int

// Error code constants
const (
	// Common errors (1000-1999)
	ErrSuccess        ErrorCode = 0
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrUnauthorized   ErrorCode = 1002
	ErrNotFound       ErrorCode = 1004
	ErrInternalServer ErrorCode = 1007
	ErrTimeout        ErrorCode = 1008

	// Pool errors (2000-2999)
	ErrTierUnknown   ErrorCode = 2000
	ErrPoolDrained   ErrorCode = 2001
	ErrReplenishBusy ErrorCode = 2002
	ErrPoolAtTarget  ErrorCode = 2003

	// Creator errors (3000-3999)
	ErrCreatorFailed  ErrorCode = 3000
	ErrCreatorTimeout ErrorCode = 3001

	// Store errors (4000-4999)
	ErrStoreSync ErrorCode = 4000
)

// errorMessages maps error codes to human-readable messages
var errorMessages = map[ErrorCode]string{
	ErrSuccess:        "success",
	ErrUnknown:        "unknown error",
	ErrInvalidParam:   "invalid parameter",
	ErrUnauthorized:   "unauthorized",
	ErrNotFound:       "resource not found",
	ErrInternalServer: "internal server error",
	ErrTimeout:        "request timed out",

	ErrTierUnknown:   "pool tier is not configured",
	ErrPoolDrained:   "pool is empty",
	ErrReplenishBusy: "replenishment already running",
	ErrPoolAtTarget:  "pool is already at target size",

	ErrCreatorFailed:  "card creation failed",
	ErrCreatorTimeout: "card creation timed out",

	ErrStoreSync: "snapshot flush failed",
}

// httpStatusMap maps error codes to HTTP status codes
var httpStatusMap = map[ErrorCode]int{
	ErrSuccess:        http.StatusOK,
	ErrUnknown:        http.StatusInternalServerError,
	ErrInvalidParam:   http.StatusBadRequest,
	ErrUnauthorized:   http.StatusUnauthorized,
	ErrNotFound:       http.StatusNotFound,
	ErrInternalServer: http.StatusInternalServerError,
	ErrTimeout:        http.StatusGatewayTimeout,

	ErrTierUnknown:   http.StatusBadRequest,
	ErrPoolDrained:   http.StatusNotFound,
	ErrReplenishBusy: http.StatusConflict,
	ErrPoolAtTarget:  http.StatusConflict,

	ErrCreatorFailed:  http.StatusBadGateway,
	ErrCreatorTimeout: http.StatusGatewayTimeout,

	ErrStoreSync: http.StatusInternalServerError,
}

// GetErrorMessage returns the message for an error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return errorMessages[ErrUnknown]
}

// GetHTTPStatus returns the HTTP status for an error code
func GetHTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
