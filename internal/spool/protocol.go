package spool

import (
	"encoding/json"
	"fmt"
)

// Request is enqueued by a client as a spool file and consumed exactly once
// by the server, which renames it to its in-flight counterpart on claim.
type Request struct {
	ID           string         `json:"id"`
	Method       string         `json:"method"`
	Params       map[string]any `json:"params"`
	Timeout      float64        `json:"timeout,omitempty"`       // seconds, processing watchdog hint
	ResponseFile string         `json:"response_file,omitempty"` // file name the response should land in
}

// Response carries either a result or an error back to the waiting client,
// correlated by the request id. An empty id is tolerated by readers.
type Response struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo mirrors the JSON-RPC error object shape.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Error codes carried in responses. CodeInternal reports a failure inside
// a handler; CodeInternalError reports a bridge-level fault, either a
// watchdog timeout or a handler crash.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32000
	CodeInternalError  = -32603
)

// NewResult builds a result response for id.
func NewResult(id string, v any) (*Response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewError builds an error response for id.
func NewError(id string, code int, message string) *Response {
	return &Response{ID: id, Error: &ErrorInfo{Code: code, Message: message}}
}
