package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/petal-labs/petalmcp/mcp"
)

const (
	// ToolErrorCodeTimeout is returned when an upstream call exceeds its deadline.
	ToolErrorCodeTimeout = "TIMEOUT"
	// ToolErrorCodeUpstreamFailure is returned for non-success upstream responses.
	ToolErrorCodeUpstreamFailure = "UPSTREAM_FAILURE"
	// ToolErrorCodeTransportFailure is returned when network I/O fails.
	ToolErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ToolErrorCodeDecodeFailure is returned when an upstream payload cannot be decoded.
	ToolErrorCodeDecodeFailure = "DECODE_FAILURE"
	// ToolErrorCodeInvocationFailed is the generic fallback.
	ToolErrorCodeInvocationFailed = "INVOCATION_FAILED"
)

// ToolError is the explicit failure value a collaborator produces instead of
// panicking or leaking a Go error past the dispatcher. Message is the
// human-readable text shown to the peer after the "Error: " prefix.
// StatusCode is the upstream HTTP status for UPSTREAM_FAILURE, zero otherwise.
type ToolError struct {
	Code       string
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ToolErrorCodeInvocationFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewToolError builds a ToolError, defaulting the code and deriving the
// message from the cause when none is given.
func NewToolError(code, message string, retryable bool, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ToolErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:      cleanCode,
		Message:   cleanMsg,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewUpstreamError builds an UPSTREAM_FAILURE for a non-success HTTP status.
// 5xx statuses are retryable.
func NewUpstreamError(status int, message string) *ToolError {
	err := NewToolError(ToolErrorCodeUpstreamFailure, message, status >= 500, nil)
	err.StatusCode = status
	return err
}

// ErrorCode extracts the ToolError code from err, if any.
func ErrorCode(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Code
	}
	return ""
}

// StatusCode extracts the upstream HTTP status carried by err, if any.
func StatusCode(err error) int {
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.StatusCode
	}
	return 0
}

// ErrorText renders err as the peer-visible error string.
func ErrorText(err error) string {
	if err == nil {
		return "Error: " + ToolErrorCodeInvocationFailed
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr != nil && strings.TrimSpace(toolErr.Message) != "" {
		return "Error: " + strings.TrimSpace(toolErr.Message)
	}
	return "Error: " + err.Error()
}

// ErrorBlocks is the single mapping step from a collaborator failure to the
// content the peer receives.
func ErrorBlocks(err error) []mcp.ContentBlock {
	return mcp.Text(ErrorText(err))
}

type callRecordKey struct{}

// callRecord collects the failure a handler reports for the running call.
type callRecord struct {
	mu  sync.Mutex
	err error
}

func withCallRecord(ctx context.Context, rec *callRecord) context.Context {
	return context.WithValue(ctx, callRecordKey{}, rec)
}

func (r *callRecord) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Fail maps err to the content the peer receives and marks the running call
// as failed, so the dispatcher reports OutcomeToolError without inspecting
// the text. Outside a dispatch it only maps err.
func Fail(ctx context.Context, err error) []mcp.ContentBlock {
	if err == nil {
		err = NewToolError("", "", false, nil)
	}
	if rec, ok := ctx.Value(callRecordKey{}).(*callRecord); ok {
		rec.mu.Lock()
		rec.err = err
		rec.mu.Unlock()
	}
	return ErrorBlocks(err)
}
