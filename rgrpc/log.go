// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

// LogLevel is the severity of a client-directed log message.
type LogLevel string

const (
	// LogException marks an unrecoverable error that terminates the call.
	LogException LogLevel = "EXCEPTION"
	// LogError indicates a recoverable error condition.
	LogError LogLevel = "ERROR"
	// LogWarn indicates a condition that may require attention.
	LogWarn LogLevel = "WARN"
	// LogInfo is a normal informational message.
	LogInfo LogLevel = "INFO"
	// LogDebug is a verbose diagnostic message.
	LogDebug LogLevel = "DEBUG"
	// LogTrace is the least severe level.
	LogTrace LogLevel = "TRACE"
)

// logLevelPriority orders levels, lower is more severe.
func logLevelPriority(level LogLevel) int {
	switch level {
	case LogException:
		return 0
	case LogError:
		return 1
	case LogWarn:
		return 2
	case LogInfo:
		return 3
	case LogDebug:
		return 4
	case LogTrace:
		return 5
	default:
		return 6
	}
}

// KV is a key-value pair attached to a log message.
type KV struct {
	Key   string
	Value string
}

// LogMessage is one client-directed log entry carried as a zero-row batch.
type LogMessage struct {
	Level   LogLevel
	Message string
	Extras  map[string]string
}
