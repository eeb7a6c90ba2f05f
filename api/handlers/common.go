package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/internal/ctxkeys"
)

// ErrorCode is the machine-readable error tag carried in the response body.
type ErrorCode string

const (
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeUnauthorized   ErrorCode = "unauthorized"
	CodeForbidden      ErrorCode = "forbidden"
	CodeNotFound       ErrorCode = "not_found"
	CodeRateLimited    ErrorCode = "rate_limited"
	CodeInternal       ErrorCode = "internal_error"
)

func httpStatusFor(code ErrorCode) int {
	switch code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Response is the uniform API envelope.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// The status line is already gone if encoding fails; nothing to repair.
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope around data.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteSuccessStatus(w, r, http.StatusOK, data)
}

// WriteSuccessStatus writes a success envelope with an explicit status.
func WriteSuccessStatus(w http.ResponseWriter, r *http.Request, status int, data any) {
	reqID, _ := ctxkeys.RequestID(r.Context())
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: reqID,
	})
}

// WriteError writes an error envelope, mapping the code to an HTTP status.
func WriteError(w http.ResponseWriter, r *http.Request, code ErrorCode, message string, logger *zap.Logger) {
	status := httpStatusFor(code)
	if logger != nil && status >= 500 {
		logger.Error("API error",
			zap.String("code", string(code)),
			zap.String("message", message),
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
		)
	}
	reqID, _ := ctxkeys.RequestID(r.Context())
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
		RequestID: reqID,
	})
}

// DecodeJSONBody decodes the request body into dst, rejecting unknown fields.
// On failure the error response has already been written.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	if r.Body == nil {
		WriteError(w, r, CodeInvalidRequest, "request body is empty", logger)
		return false
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		WriteError(w, r, CodeInvalidRequest, "invalid JSON body: "+err.Error(), logger)
		return false
	}
	return true
}

// ResponseWriter wraps http.ResponseWriter to capture the status code for
// logging and metrics middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter wraps w with a 200 default status.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
