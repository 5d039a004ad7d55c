package rgrpc

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// ErrRpc is a sentinel for errors.Is checks: it matches any *RpcError in a
// chain regardless of type or message.
var ErrRpc = &RpcError{}

// RpcError is an error carried on the wire as an EXCEPTION batch.
type RpcError struct {
	Type      string // e.g. "ValueError", "RuntimeError", "ProtocolError"
	Message   string
	Traceback string
	RequestID string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is supports errors.Is by matching any *RpcError target.
func (e *RpcError) Is(target error) bool {
	_, ok := target.(*RpcError)
	return ok
}

// stackFrame is one frame of a server-side stack trace in the error extra.
type stackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// errorExtra is the JSON structure written to rg_rpc.log_extra on
// EXCEPTION batches.
type errorExtra struct {
	ExceptionType    string       `json:"exception_type"`
	ExceptionMessage string       `json:"exception_message"`
	Traceback        string       `json:"traceback"`
	Frames           []stackFrame `json:"frames"`
}

// buildErrorExtra renders the rg_rpc.log_extra JSON for an error. When
// debug is false the traceback and frames are omitted so public-facing
// servers do not leak implementation detail.
func buildErrorExtra(err error, debug bool) string {
	errType := fmt.Sprintf("%T", err)
	if rpcErr, ok := err.(*RpcError); ok {
		errType = rpcErr.Type
	}

	extra := errorExtra{
		ExceptionType:    errType,
		ExceptionMessage: err.Error(),
	}

	if debug {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		extra.Traceback = string(buf[:n])

		pcs := make([]uintptr, 10)
		n = runtime.Callers(2, pcs)
		if n > 0 {
			callersFrames := runtime.CallersFrames(pcs[:n])
			for count := 0; count < 5; count++ {
				frame, more := callersFrames.Next()
				extra.Frames = append(extra.Frames, stackFrame{
					File:     frame.File,
					Line:     frame.Line,
					Function: frame.Function,
				})
				if !more {
					break
				}
			}
		}
	}

	data, _ := json.Marshal(extra)
	return string(data)
}

// parseErrorExtra recovers an *RpcError from an EXCEPTION batch's metadata.
// Used on the client side.
func parseErrorExtra(message, extraJSON, requestID string) *RpcError {
	rpcErr := &RpcError{
		Type:      "RpcError",
		Message:   message,
		RequestID: requestID,
	}
	if extraJSON == "" {
		return rpcErr
	}
	var extra errorExtra
	if err := json.Unmarshal([]byte(extraJSON), &extra); err != nil {
		return rpcErr
	}
	if extra.ExceptionType != "" {
		rpcErr.Type = extra.ExceptionType
	}
	if extra.ExceptionMessage != "" {
		rpcErr.Message = extra.ExceptionMessage
	}
	rpcErr.Traceback = extra.Traceback
	return rpcErr
}
