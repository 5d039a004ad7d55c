// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Method shape strings for DispatchInfo.MethodType.
const (
	DispatchMethodUnary     = "unary"
	DispatchMethodProducer  = "producer"
	DispatchMethodCollector = "collector"
	DispatchMethodExchange  = "exchange"
)

// DispatchHook provides observability callpoints around RPC dispatch.
// Implementations must be safe for concurrent use; one server may be
// serving several connections.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnDispatchStart and handed back
// to OnDispatchEnd. Only meaningful to the hook that created it.
type HookToken interface{}

// DispatchInfo carries per-call metadata passed to hooks.
type DispatchInfo struct {
	Method            string            // RPC method name
	MethodType        string            // one of the DispatchMethod* constants
	ServerID          string            // server identifier
	RequestID         string            // client-supplied request identifier
	TransportMetadata map[string]string // request batch custom metadata
}

// CallStatistics holds per-call I/O counters.
type CallStatistics struct {
	InputBatches  int64
	OutputBatches int64
	InputRows     int64
	OutputRows    int64
	InputBytes    int64
	OutputBytes   int64
}

// RecordInput records one input batch.
func (s *CallStatistics) RecordInput(numRows, bufferBytes int64) {
	s.InputBatches++
	s.InputRows += numRows
	s.InputBytes += bufferBytes
}

// RecordOutput records one output batch.
func (s *CallStatistics) RecordOutput(numRows, bufferBytes int64) {
	s.OutputBatches++
	s.OutputRows += numRows
	s.OutputBytes += bufferBytes
}

// batchBufferSize is the total top-level buffer size in bytes across all
// columns of a record batch.
func batchBufferSize(batch arrow.RecordBatch) int64 {
	var total int64
	for i := int64(0); i < batch.NumCols(); i++ {
		col := batch.Column(int(i))
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	}
	return total
}
