// Package core provides unified response format for HTTP handlers
package core

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Response represents a unified API response structure
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// getRequestID extracts request ID from gin context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// Success sends a success response with data
func Success(c *gin.Context, data interface{}) {
	c.JSON(GetHTTPStatus(ErrSuccess), Response{
		Code:      int(ErrSuccess),
		Message:   GetErrorMessage(ErrSuccess),
		Data:      data,
		Timestamp: time.Now().Unix(),
		RequestID: getRequestID(c),
	})
}

// SuccessWithMessage sends a success response with custom message
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(GetHTTPStatus(ErrSuccess), Response{
		Code:      int(ErrSuccess),
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
		RequestID: getRequestID(c),
	})
}

// FailWithCode sends a failure response with specific error code
func FailWithCode(c *gin.Context, code ErrorCode) {
	c.JSON(GetHTTPStatus(code), Response{
		Code:      int(code),
		Message:   GetErrorMessage(code),
		Timestamp: time.Now().Unix(),
		RequestID: getRequestID(c),
	})
}

// FailWithMessage sends a failure response with custom message
func FailWithMessage(c *gin.Context, code ErrorCode, message string) {
	c.JSON(GetHTTPStatus(code), Response{
		Code:      int(code),
		Message:   message,
		Timestamp: time.Now().Unix(),
		RequestID: getRequestID(c),
	})
}

// FailWithData sends a failure response with error code and additional data
func FailWithData(c *gin.Context, code ErrorCode, data interface{}) {
	c.JSON(GetHTTPStatus(code), Response{
		Code:      int(code),
		Message:   GetErrorMessage(code),
		Data:      data,
		Timestamp: time.Now().Unix(),
		RequestID: getRequestID(c),
	})
}

// Abort sends a failure response and aborts the request
func Abort(c *gin.Context, code ErrorCode) {
	c.AbortWithStatusJSON(GetHTTPStatus(code), Response{
		Code:      int(code),
		Message:   GetErrorMessage(code),
		Timestamp: time.Now().Unix(),
		RequestID: getRequestID(c),
	})
}

// AbortWithMessage sends a failure response with custom message and aborts
func AbortWithMessage(c *gin.Context, code ErrorCode, message string) {
	c.AbortWithStatusJSON(GetHTTPStatus(code), Response{
		Code:      int(code),
		Message:   message,
		Timestamp: time.Now().Unix(),
		RequestID: getRequestID(c),
	})
}
