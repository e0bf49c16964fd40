/*
Package middleware provides error handling utilities and structured error responses.

Every API error is written as an APIError body. Rejections the client can
retry (rate limited, queue full, shutting down) also carry a Retry-After
header, which the polling client uses as a hint.
*/
package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCode identifies the kind of failure in an API error body
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
)

// RetryAfter is sent with 429 and 503 responses
var RetryAfter = 30 * time.Second

var errorMessages = map[ErrorCode]string{
	ErrCodeBadRequest:         "The request body could not be read",
	ErrCodeNotFound:           "No blog generation job exists with this id",
	ErrCodeRateLimited:        "Too many blog generation requests, try again later",
	ErrCodeInternalError:      "Blog generation could not be started",
	ErrCodeServiceUnavailable: "Blog generation is temporarily unavailable",
	ErrCodeValidation:         "The blog generation request is invalid",
}

// APIError is the JSON body of every error response
type APIError struct {
	Error     ErrorCode `json:"error"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// ErrorHandler writes err as an APIError with the given code and status.
// 5xx responses are logged at error level, the rest at warn.
func ErrorHandler(w http.ResponseWriter, err error, code ErrorCode, statusCode int, requestID string) {
	message, ok := errorMessages[code]
	if !ok {
		message = "An unknown error occurred"
	}

	entry := logger().WithFields(logrus.Fields{
		"error_code":  code,
		"status_code": statusCode,
		"request_id":  requestID,
		"error":       err.Error(),
	})
	if statusCode >= http.StatusInternalServerError {
		entry.Error("API error occurred")
	} else {
		entry.Warn("API request rejected")
	}

	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(RetryAfter.Seconds())))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error:     code,
		Message:   message,
		Details:   err.Error(),
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func RespondBadRequest(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeBadRequest, http.StatusBadRequest, requestID)
}

func RespondValidationError(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeValidation, http.StatusBadRequest, requestID)
}

func RespondNotFound(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeNotFound, http.StatusNotFound, requestID)
}

func RespondRateLimited(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeRateLimited, http.StatusTooManyRequests, requestID)
}

func RespondServiceUnavailable(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeServiceUnavailable, http.StatusServiceUnavailable, requestID)
}

func RespondInternalError(w http.ResponseWriter, err error, requestID string) {
	ErrorHandler(w, err, ErrCodeInternalError, http.StatusInternalServerError, requestID)
}
