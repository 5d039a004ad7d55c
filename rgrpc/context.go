// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import "context"

// CallContext provides request-scoped information and client-directed
// logging to method handlers.
type CallContext struct {
	// Ctx carries cancellation and deadlines for the call.
	Ctx context.Context
	// RequestID is the client-supplied identifier, echoed in all response
	// metadata.
	RequestID string
	// ServerID is the identifier set via [Server.SetServerID].
	ServerID string
	// Method is the RPC method being invoked.
	Method string
	// LogLevel is the client-requested minimum severity. Messages below it
	// are discarded by [CallContext.ClientLog].
	LogLevel LogLevel
	logs     []LogMessage
}

// ClientLog records a log message destined for the client. Messages below
// the client-requested level are dropped.
func (ctx *CallContext) ClientLog(level LogLevel, msg string, extras ...KV) {
	if logLevelPriority(level) > logLevelPriority(ctx.LogLevel) {
		return
	}
	logMsg := LogMessage{Level: level, Message: msg}
	if len(extras) > 0 {
		logMsg.Extras = make(map[string]string, len(extras))
		for _, kv := range extras {
			logMsg.Extras[kv.Key] = kv.Value
		}
	}
	ctx.logs = append(ctx.logs, logMsg)
}

// drainLogs returns and clears the accumulated log messages.
func (ctx *CallContext) drainLogs() []LogMessage {
	logs := ctx.logs
	ctx.logs = nil
	return logs
}
